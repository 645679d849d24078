package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sagarc03/mediareceiver/config"
)

var addCmd = &cobra.Command{
	Use:   "add [flags] <file1> [file2] ...",
	Short: "Import local files into storage",
	Long: `Import files from this machine into the storage root without going
through the upload server. Files are classified and named exactly like
uploads and recorded in the ledger when one is configured.

Examples:
  # Add a single file
  mediareceiver add /path/to/photo.jpg

  # Add a directory recursively
  mediareceiver add -r /path/to/camera-roll`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

var addRecursive bool

func init() {
	addCmd.Flags().BoolVarP(&addRecursive, "recursive", "r", false, "recursively add directories")
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	// Collect files from all arguments
	var files []string
	for _, arg := range args {
		entries, collectErr := collectFiles(arg, addRecursive)
		if collectErr != nil {
			return fmt.Errorf("collect files from %s: %w", arg, collectErr)
		}
		files = append(files, entries...)
	}

	if len(files) == 0 {
		slog.Info("no files to add")
		return nil
	}

	service, cleanup, err := openService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	added := 0
	for _, p := range files {
		f, openErr := os.Open(p) //#nosec G304 -- p is user-provided input
		if openErr != nil {
			return fmt.Errorf("open %s: %w", p, openErr)
		}

		stored, importErr := service.Import(ctx, filepath.Base(p), f)
		_ = f.Close()

		if importErr != nil {
			return fmt.Errorf("add %s: %w", p, importErr)
		}

		added++
		if !quiet {
			slog.Info("added", "source", p, "path", stored.StoredPath, "category", stored.Category)
		}
	}

	slog.Info("add complete", "added", added)
	return nil
}

// collectFiles gathers regular files from a path, optionally recursively.
func collectFiles(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	if !recursive {
		return nil, fmt.Errorf("%s is a directory (use -r to add recursively)", path)
	}

	var files []string
	walkErr := filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.Type().IsRegular() {
			files = append(files, walkPath)
		}
		return nil
	})

	if walkErr != nil {
		return nil, walkErr
	}

	return files, nil
}
