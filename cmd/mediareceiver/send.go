package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/mediareceiver/clientcli"
)

var sendCmd = &cobra.Command{
	Use:   "send <file-or-dir>...",
	Short: "Upload local files to a running server",
	Long: `Upload local files to a running server over its upload page endpoint,
the same way a browser does. Each file is sent in its own request.

Examples:
  # Send two photos
  mediareceiver send --server http://192.168.1.20:8080 a.jpg b.jpg

  # Send a whole directory
  mediareceiver send -r ./holiday`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendServer    string
	sendRecursive bool
)

func init() {
	sendCmd.Flags().StringVarP(&sendServer, "server", "s", "http://localhost:8080", "upload server URL")
	sendCmd.Flags().BoolVarP(&sendRecursive, "recursive", "r", false, "send directories recursively")
	rootCmd.AddCommand(sendCmd)
}

var errSendFailed = errors.New("one or more files failed to send")

func runSend(cmd *cobra.Command, args []string) error {
	formatter := getFormatter()

	client, err := clientcli.New(sendServer)
	if err != nil {
		return err
	}

	results, err := client.Send(cmd.Context(), clientcli.SendOptions{
		Paths:     args,
		Recursive: sendRecursive,
	})
	if err != nil {
		_ = formatter.FormatError(os.Stderr, err)
		return err
	}

	if err := formatter.FormatSend(os.Stdout, results); err != nil {
		return err
	}

	if clientcli.HasSendErrors(results) {
		return errSendFailed
	}
	return nil
}
