package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/config"
	"github.com/sagarc03/mediareceiver/filesystem"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Record files already in storage in the upload ledger",
	Long: `Walk the category directories under the storage root and add a ledger
entry for every file that has none. This is useful when:
  - Enabling the ledger on a storage root that already has files
  - Recovering the ledger after it was lost
  - Files were copied into the category directories by hand`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	service, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if !service.HasLedger() {
		return fmt.Errorf("reindex: %w", mediareceiver.ErrLedgerDisabled)
	}

	slog.Info("scanning storage directory", "path", filepath.Join(cfg.Storage.Root, filesystem.AppDir))

	added, err := service.Reindex(ctx)
	if err != nil {
		return err
	}

	slog.Info("reindex complete", "files_added", added)
	return nil
}
