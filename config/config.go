package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sagarc03/mediareceiver/database"
	mrhttp "github.com/sagarc03/mediareceiver/http"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "MEDIARECEIVER"

// configKey is the context key for storing the loaded configuration.
type configKey struct{}

// WithContext returns a new context with the config stored.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config from context.
// Returns an error if config is not found.
func FromContext(ctx context.Context) (*Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	if !ok || cfg == nil {
		return nil, errors.New("config not found in context")
	}
	return cfg, nil
}

// Config is the root configuration struct for the media receiver.
type Config struct {
	Server   ServerConfig      `mapstructure:"server" yaml:"server"`
	Storage  StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Template TemplateConfig    `mapstructure:"template" yaml:"template"`
	Database database.Config   `mapstructure:"database" yaml:"database"`
	Admin    AdminConfig       `mapstructure:"admin" yaml:"admin"`
	CORS     mrhttp.CORSConfig `mapstructure:"cors" yaml:"cors"`
	Log      LogConfig         `mapstructure:"log" yaml:"log"`
	Env      string            `mapstructure:"env" yaml:"env" validate:"required"`
}

// ServerConfig holds the upload server configuration.
type ServerConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`
	MaxUploadSize  int64  `mapstructure:"max_upload_size" yaml:"max_upload_size" validate:"min=0"`
}

// Addr returns the listen address, host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// StorageConfig holds the destination storage configuration.
type StorageConfig struct {
	Root string `mapstructure:"root" yaml:"root" validate:"required"`
}

// TemplateConfig points at an optional external upload page.
type TemplateConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AdminConfig holds the status API configuration.
type AdminConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"required,min=1,max=65535"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
}

// IsProduction reports whether env selects the production log format.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// flagToViperKey maps CLI flag names to viper configuration keys.
var flagToViperKey = map[string]string{
	"host":            "server.host",
	"port":            "server.port",
	"max-connections": "server.max_connections",
	"max-upload-size": "server.max_upload_size",
	"storage-root":    "storage.root",
	"template":        "template.path",
	"db-type":         "database.type",
	"db-dsn":          "database.dsn",
	"admin":           "admin.enabled",
	"admin-port":      "admin.port",
	"log-level":       "log.level",
}

// bindFlags binds CLI flags to viper keys with custom name mapping.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		// Use custom mapping if it exists, otherwise use flag name as-is
		viperKey := f.Name
		if mapped, ok := flagToViperKey[viperKey]; ok {
			viperKey = mapped
		}

		// Only bind if the flag was explicitly set
		if f.Changed {
			_ = v.BindPFlag(viperKey, f)
		}
	})
}

// setDefaults configures default values on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_connections", 0) // 0 means unbounded
	v.SetDefault("server.max_upload_size", 0) // 0 means no limit

	v.SetDefault("storage.root", ".")

	v.SetDefault("template.path", "")

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "mediareceiver.db")
	v.SetDefault("database.tables.uploads", "mediareceiver_uploads")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.port", 8081)

	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Content-Type"})
	v.SetDefault("cors.exposed_headers", []string{})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("env", "dev")
}

// Load reads configuration and returns a validated Config struct.
// Order of precedence (highest to lowest): flags > env > config files > defaults
//
// Parameters:
//   - configFiles: list of config file paths (later files override earlier ones)
//   - flags: cobra flag set for flag binding (can be nil)
func Load(configFiles []string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Read config files
	if len(configFiles) > 0 {
		v.SetConfigFile(configFiles[0])
		if err := v.ReadInConfig(); err != nil {
			slog.Warn("error reading config file", "file", configFiles[0], "err", err)
		}

		for _, cf := range configFiles[1:] {
			v.SetConfigFile(cf)
			if err := v.MergeInConfig(); err != nil {
				slog.Warn("error merging config file", "file", cf, "err", err)
			}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				slog.Warn("error reading config file", "err", err)
			}
		}
	}

	// 3. Bind environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Bind flags (if provided)
	if flags != nil {
		bindFlags(v, flags)
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 6. Validate using go-playground/validator
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if cfg.Database.Type != database.TypeNone {
		if err := cfg.Database.Tables.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}

	return &cfg, nil
}

// Write serialises cfg as YAML to path. An existing file is replaced.
func Write(path string, cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("write config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
