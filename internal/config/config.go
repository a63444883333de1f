// Package config loads service settings from an optional YAML file and
// MARKET_* environment variables. Command-line flags bound with BindFlags
// override both.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"file-nft-market/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. MARKET_SERVER_ADDR.
const EnvPrefix = "MARKET"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Export  ExportConfig  `mapstructure:"export"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	Environment string `mapstructure:"environment"` // development | production
	LogLevel    string `mapstructure:"log_level"`
}

type StorageConfig struct {
	Driver      string       `mapstructure:"driver"`
	PostgresDSN string       `mapstructure:"postgres_dsn"`
	Pool        PostgresPool `mapstructure:"pool"`
}

// PostgresPool sizes the connection pool. Zero values keep pgx defaults.
type PostgresPool struct {
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

type LedgerConfig struct {
	// Authority is the base58 address component addresses derive from.
	// Empty uses the built-in default.
	Authority  string            `mapstructure:"authority"`
	Descriptor domain.Descriptor `mapstructure:"descriptor"`
}

// ExportConfig drives the front-end artifact export.
type ExportConfig struct {
	Network        string `mapstructure:"network"`
	Dir            string `mapstructure:"dir"`
	UpdateFrontEnd bool   `mapstructure:"update_front_end"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.pool.max_conns", 10)
	v.SetDefault("storage.pool.min_conns", 0)
	v.SetDefault("storage.pool.max_conn_lifetime", "30m")
	v.SetDefault("storage.pool.connect_timeout", "5s")

	v.SetDefault("ledger.authority", "")
	v.SetDefault("ledger.descriptor.name", "FileNFT")
	v.SetDefault("ledger.descriptor.description", "Friendly IPFS File Sharing Marketplace")
	v.SetDefault("ledger.descriptor.external_url", "")
	v.SetDefault("ledger.descriptor.image", "ipfs://QmUiUggupq2m6pNg1fXCW7dVXPdSq9x9pt42GXmzaue6eK")
	v.SetDefault("ledger.descriptor.uri", "https://ipfs.io/ipfs/QmdPjb9vS2Ac6odh58oKePGX397VJumN1NpEck8SPpo3V9")

	v.SetDefault("export.network", "localhost")
	v.SetDefault("export.dir", "frontend/constants")
	v.SetDefault("export.update_front_end", false)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names used by deployment scripts.
	if err := v.BindEnv("storage.postgres_dsn", "MARKET_STORAGE_POSTGRES_DSN", "POSTGRES_DSN"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("export.update_front_end", "MARKET_EXPORT_UPDATE_FRONT_END", "UPDATE_FRONT_END"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// BindFlags registers flags on fs whose defaults are the loaded values.
// Parsing fs then overrides the file and environment.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Server.Addr, "addr", c.Server.Addr, "HTTP listen address")
	fs.StringVar(&c.Server.Environment, "env", c.Server.Environment, "Environment (development, production)")
	fs.StringVar(&c.Server.LogLevel, "log-level", c.Server.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.Storage.Driver, "storage", c.Storage.Driver, "Storage driver (memory, postgres)")
	fs.StringVar(&c.Storage.PostgresDSN, "postgres-dsn", c.Storage.PostgresDSN, "PostgreSQL connection string")
	fs.Func("postgres-max-conns", "Maximum PostgreSQL pool connections", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return err
		}
		c.Storage.Pool.MaxConns = int32(n)
		return nil
	})
	fs.StringVar(&c.Ledger.Authority, "authority", c.Ledger.Authority, "Base address for component address derivation")
	fs.StringVar(&c.Export.Network, "network", c.Export.Network, "Network name for front-end export")
	fs.StringVar(&c.Export.Dir, "export-dir", c.Export.Dir, "Front-end export directory")
	fs.BoolVar(&c.Export.UpdateFrontEnd, "update-front-end", c.Export.UpdateFrontEnd, "Write front-end artifacts at startup")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres driver requires a DSN", ErrInvalidConfig)
		}
		p := c.Storage.Pool
		if p.MaxConns < 0 || p.MinConns < 0 || (p.MaxConns > 0 && p.MinConns > p.MaxConns) {
			return fmt.Errorf("%w: pool min_conns %d exceeds max_conns %d", ErrInvalidConfig, p.MinConns, p.MaxConns)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalidConfig)
	}
	if c.Ledger.Authority != "" {
		if _, err := domain.ParseAddress(c.Ledger.Authority); err != nil {
			return fmt.Errorf("%w: authority: %w", ErrInvalidConfig, err)
		}
	}
	if c.Export.UpdateFrontEnd && c.Export.Network == "" {
		return fmt.Errorf("%w: front-end export requires a network", ErrInvalidConfig)
	}
	return nil
}

// AuthorityAddress returns the configured authority, or "" for the default.
func (c *Config) AuthorityAddress() domain.Address {
	return domain.Address(c.Ledger.Authority)
}

// LoadWithFlags finds -config in args (falling back to MARKET_CONFIG), loads
// it, then parses args on fs with BindFlags applied. Extra flags the caller
// registered on fs before the call are parsed too.
func LoadWithFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	path := configPath(args)
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fs.String("config", path, "Path to YAML config file")
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(EnvPrefix + "_CONFIG")
}
