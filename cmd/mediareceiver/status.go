package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/mediareceiver/clientcli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running server",
	Long: `Query the status API of a running server (serve --admin) and print
whether it is accepting connections, the session counters and its URLs.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusServer string

func init() {
	statusCmd.Flags().StringVarP(&statusServer, "server", "s", "http://localhost:8081", "status API URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	formatter := getFormatter()

	client, err := clientcli.New(statusServer)
	if err != nil {
		return err
	}

	status, err := client.Status(cmd.Context())
	if err != nil {
		_ = formatter.FormatError(os.Stderr, err)
		return err
	}

	return formatter.FormatStatus(os.Stdout, status)
}
