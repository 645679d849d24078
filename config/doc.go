// Package config provides configuration loading and validation for the
// media receiver.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (MEDIARECEIVER_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// Write serialises a Config back to YAML; the init command uses it.
//
// # Environment Variables
//
// All config keys map to environment variables with MEDIARECEIVER_ prefix:
//   - server.port → MEDIARECEIVER_SERVER_PORT
//   - storage.root → MEDIARECEIVER_STORAGE_ROOT
//   - database.type → MEDIARECEIVER_DATABASE_TYPE
//
// # Configuration Structure
//
// The Config struct contains:
//   - Server: host, port, max_connections and max_upload_size
//   - Storage: root directory under which MediaReceiverPro/ is created
//   - Template: optional external upload page
//   - Database: upload ledger type (sqlite, postgres, none), DSN and table names
//   - Admin: status API toggle and port
//   - CORS: cross-origin settings for the status API
//   - Log: logging level
//   - Env: "prod" or "production" switches logs to JSON
//
// # Validation
//
// Configuration is validated using struct tags:
//   - Ports must be 1-65535
//   - max_connections and max_upload_size must not be negative
//   - Database type must be sqlite, postgres, or none
//   - Log level must be debug, info, warn, or error
package config
