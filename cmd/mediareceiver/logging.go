package main

import (
	"io"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/sagarc03/mediareceiver/config"
)

// setupLogging installs the default slog handler: JSON with a "ts" key in
// production, tint otherwise. quiet raises the level to warn so command
// output is not mixed with progress logs.
func setupLogging(w io.Writer, cfg *config.Config, quiet bool) {
	level := logLevel(cfg, quiet)

	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.String("ts", a.Value.Time().UTC().Format(time.RFC3339Nano))
				}
				return a
			},
		})
	} else {
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  level == slog.LevelDebug,
			TimeFormat: "15:04:05.000",
		})
	}

	slog.SetDefault(slog.New(h).With("app", "mediareceiver"))

	log.SetFlags(0)
	log.SetOutput(slog.NewLogLogger(h, slog.LevelInfo).Writer())
}

func logLevel(cfg *config.Config, quiet bool) slog.Level {
	s := cfg.Log.Level
	if s == "" && !cfg.IsProduction() {
		s = "debug"
	}

	level := parseLevel(s)
	if quiet && level < slog.LevelWarn {
		return slog.LevelWarn
	}
	return level
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
