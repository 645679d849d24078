package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/sagarc03/mediareceiver/config"
	"github.com/sagarc03/mediareceiver/filesystem"
	mrhttp "github.com/sagarc03/mediareceiver/http"
	"github.com/sagarc03/mediareceiver/network"
	"github.com/sagarc03/mediareceiver/observer"
	"github.com/sagarc03/mediareceiver/page"
	"github.com/sagarc03/mediareceiver/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	Long: `Start the upload server and, when enabled, the JSON status API.

The local and LAN URLs are printed on start together with a QR code of the
LAN URL. SIGINT or SIGTERM stops accepting connections; uploads in progress
are allowed to finish.`,
	RunE: runServe,
}

var serveNoQR bool

func init() {
	serveCmd.Flags().String("host", "", "listen host (default: all interfaces)")
	serveCmd.Flags().Int("port", 8080, "upload server port")
	serveCmd.Flags().Int("max-connections", 0, "concurrent connection limit, 0 for none")
	serveCmd.Flags().Int64("max-upload-size", 0, "largest accepted request body in bytes, 0 for none")
	serveCmd.Flags().String("template", "", "external upload page template")
	serveCmd.Flags().Bool("admin", false, "serve the JSON status API")
	serveCmd.Flags().Int("admin-port", 8081, "status API port")
	serveCmd.Flags().BoolVar(&serveNoQR, "no-qr", false, "do not print a QR code")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	if service.HasLedger() {
		slog.Info("upload ledger enabled", "type", cfg.Database.Type)
	}

	snapshot := &observer.Snapshot{}
	obs := observer.Multi{observer.NewLogger(slog.Default()), snapshot}

	srv := server.New(service, page.NewEngine(cfg.Template.Path), obs, server.Config{
		Addr:           cfg.Server.Addr(),
		MaxConnections: cfg.Server.MaxConnections,
		MaxUploadSize:  cfg.Server.MaxUploadSize,
	})

	if err := srv.Start(); err != nil {
		_ = srv.Close()
		return fmt.Errorf("start server: %w", err)
	}

	lan, err := network.LocalIP()
	if err != nil {
		slog.Warn("could not determine LAN address", "err", err)
	}
	urls := network.URLs(cfg.Server.Host, cfg.Server.Port, lan)

	printBanner(cmd.OutOrStdout(), urls, filepath.Join(cfg.Storage.Root, filesystem.AppDir), !serveNoQR)

	var admin *http.Server
	if cfg.Admin.Enabled {
		admin = startAdmin(cfg, urls, srv, service)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down server...", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := srv.Close(); err != nil {
		slog.Error("server stop error", "err", err)
	}

	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := admin.Shutdown(shutdownCtx); err != nil {
			slog.Error("status api shutdown error", "err", err)
		}
	}

	st := srv.Status()
	slog.Info("session ended", "visitors", st.Visitors, "files", st.Files, "dropped_events", srv.DroppedEvents(), "last_event", snapshot.LastLog())
	return nil
}

func startAdmin(cfg *config.Config, urls []string, status mrhttp.StatusSource, service mrhttp.Service) *http.Server {
	handler := mrhttp.NewHandler(&mrhttp.HandlerConfig{URLs: urls, CORS: cfg.CORS}, status, service)

	admin := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Admin.Port)),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting status api", "addr", admin.Addr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status api error", "err", err)
		}
	}()

	return admin
}

func printBanner(w io.Writer, urls []string, storageDir string, qr bool) {
	_, _ = fmt.Fprintln(w, "MediaReceiverPro is running")
	for _, u := range urls {
		_, _ = fmt.Fprintf(w, "  %s\n", u)
	}
	_, _ = fmt.Fprintf(w, "Saving files to %s\n", storageDir)

	if !qr || len(urls) == 0 {
		return
	}

	// The LAN URL is last when there is one.
	_, _ = fmt.Fprintln(w, "\nScan to open the upload page:")
	qrterminal.GenerateHalfBlock(urls[len(urls)-1], qrterminal.M, w)
}
