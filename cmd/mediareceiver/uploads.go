package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/clientcli"
	"github.com/sagarc03/mediareceiver/config"
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "List received files from the upload ledger",
	Long: `List received files recorded in the upload ledger, newest first.

By default the ledger configured for this host is read directly. With
--server the listing comes from a running server's status API instead.

Examples:
  # First page of everything
  mediareceiver uploads

  # All images
  mediareceiver uploads --category images --all

  # Per-category totals from a running server
  mediareceiver uploads --summary --server http://192.168.1.20:8081`,
	Args: cobra.NoArgs,
	RunE: runUploads,
}

var (
	uploadsServer   string
	uploadsCategory string
	uploadsLimit    int
	uploadsCursor   string
	uploadsAll      bool
	uploadsSummary  bool
)

func init() {
	uploadsCmd.Flags().StringVarP(&uploadsServer, "server", "s", "", "status API URL; read the local ledger when empty")
	uploadsCmd.Flags().StringVar(&uploadsCategory, "category", "", "only list one category (images, videos, audio, documents, other)")
	uploadsCmd.Flags().IntVarP(&uploadsLimit, "limit", "l", 100, "maximum results per page (1-1000)")
	uploadsCmd.Flags().StringVar(&uploadsCursor, "cursor", "", "pagination cursor from a previous listing")
	uploadsCmd.Flags().BoolVar(&uploadsAll, "all", false, "fetch all pages")
	uploadsCmd.Flags().BoolVar(&uploadsSummary, "summary", false, "show per-category totals instead of entries")

	rootCmd.AddCommand(uploadsCmd)
}

func runUploads(cmd *cobra.Command, _ []string) error {
	formatter := getFormatter()
	ctx := cmd.Context()

	var category mediareceiver.Category
	if uploadsCategory != "" {
		c, err := mediareceiver.ParseCategory(uploadsCategory)
		if err != nil {
			_ = formatter.FormatError(os.Stderr, err)
			return err
		}
		category = c
	}

	opts := clientcli.ListOptions{
		Category: category,
		Limit:    uploadsLimit,
		Cursor:   uploadsCursor,
		All:      uploadsAll,
	}

	if uploadsServer != "" {
		client, err := clientcli.New(uploadsServer)
		if err != nil {
			return err
		}

		if uploadsSummary {
			summary, err := client.Summary(ctx)
			if err != nil {
				_ = formatter.FormatError(os.Stderr, err)
				return err
			}
			return formatter.FormatSummary(os.Stdout, summary)
		}

		result, err := client.List(ctx, opts)
		if err != nil {
			_ = formatter.FormatError(os.Stderr, err)
			return err
		}
		return formatter.FormatList(os.Stdout, result)
	}

	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	service, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if !service.HasLedger() {
		err := fmt.Errorf("uploads: %w", mediareceiver.ErrLedgerDisabled)
		_ = formatter.FormatError(os.Stderr, err)
		return err
	}

	if uploadsSummary {
		summary, err := service.Summary(ctx)
		if err != nil {
			_ = formatter.FormatError(os.Stderr, err)
			return err
		}
		return formatter.FormatSummary(os.Stdout, summary)
	}

	result, err := clientcli.CollectPages(ctx, service.List, opts)
	if err != nil {
		_ = formatter.FormatError(os.Stderr, err)
		return err
	}
	return formatter.FormatList(os.Stdout, result)
}
