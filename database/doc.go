// Package database connects the optional upload ledger.
//
// The ledger is an index of every file the server stored: original and
// sanitized names, category, size, etag, client address and receive time.
// It lives beside the files and is never required to serve uploads.
//
// # Supported Backends
//
//   - SQLite: default, single file next to the storage root (modernc.org/sqlite)
//   - PostgreSQL: shared ledger for several hosts (pgx connection pool)
//   - none: ledger disabled
//
// # Usage
//
//	cfg := database.Config{
//	    Type:   "sqlite",
//	    DSN:    "mediareceiver.db",
//	    Tables: mediareceiver.Tables{Uploads: "mediareceiver_uploads"},
//	}
//
//	repo, cleanup, err := database.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//
// Open connects, migrates and validates the schema before returning the
// repo. Connect only opens the backend and leaves schema work to the caller.
package database
