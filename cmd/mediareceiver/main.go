package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/clientcli"
	"github.com/sagarc03/mediareceiver/config"
	"github.com/sagarc03/mediareceiver/database"
	"github.com/sagarc03/mediareceiver/filesystem"
)

var (
	version = "dev"

	jsonOutput bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "mediareceiver",
	Short:   "Receive media uploads from browsers on the local network",
	Long: `MediaReceiverPro serves a single upload page on the local network.
Phones and laptops open the page, pick files and the server sorts them into
images, videos, audio, documents and other under the storage root.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cmd.ErrOrStderr(), cfg, quiet)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file paths, later files override earlier ones (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("storage-root", "", "directory that holds MediaReceiverPro/ (env: MEDIARECEIVER_STORAGE_ROOT)")
	rootCmd.PersistentFlags().String("db-type", "", "ledger backend: sqlite, postgres, none (env: MEDIARECEIVER_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "ledger connection string (env: MEDIARECEIVER_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: MEDIARECEIVER_LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
}

func getFormatter() clientcli.Formatter {
	return clientcli.NewFormatter(jsonOutput, quiet)
}

// openService opens storage and the ledger the way serve does. The returned
// func releases both.
func openService(ctx context.Context, cfg *config.Config) (*mediareceiver.UploadService, func(), error) {
	store, closeRoot, err := filesystem.Open(cfg.Storage.Root)
	if err != nil {
		return nil, nil, err
	}

	repo, closeDB, err := database.Open(ctx, cfg.Database)
	if err != nil {
		closeRoot()
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	cleanup := func() {
		closeDB()
		closeRoot()
	}

	service, err := mediareceiver.NewUploadService(repo, store, mediareceiver.ServiceConfig{})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create service: %w", err)
	}

	return service, cleanup, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
