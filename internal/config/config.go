package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"showsync/internal/tuxedo"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/showsync/config.yaml"

// BasicAuthConfig holds HTTP Basic Auth credentials for the admin API.
// An empty username disables authentication.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" koanf:"username"`
	Password string `yaml:"password" json:"password,omitempty" koanf:"password" validate:"required_with=Username"`
}

// TuxedoConfig holds the provider endpoint and credentials.
type TuxedoConfig struct {
	BaseURI  string `yaml:"base_uri" json:"base_uri" koanf:"base_uri" validate:"required,url"`
	Account  string `yaml:"account" json:"account" koanf:"account"`
	Username string `yaml:"username" json:"username" koanf:"username"`
	Password string `yaml:"password" json:"password,omitempty" koanf:"password"`

	// Active pauses scheduled imports when false. Manual runs still proceed.
	Active bool `yaml:"active" json:"active" koanf:"active"`

	// Timeout bounds each provider request, e.g. "2s".
	Timeout string `yaml:"timeout" json:"timeout" koanf:"timeout" validate:"required,duration"`
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	// Timezone is the IANA zone show dates are stored in.
	Timezone string `yaml:"timezone" json:"timezone" koanf:"timezone" validate:"required,timezone"`

	// Locale formats the long date in show date titles.
	Locale string `yaml:"locale" json:"locale" koanf:"locale" validate:"required,oneof=fr_CA fr en_CA en"`

	// Refresh is a cron expression or descriptor such as "@every 12h".
	Refresh string `yaml:"refresh" json:"refresh" koanf:"refresh" validate:"required,schedule"`

	// RunTimeout bounds a whole run, e.g. "10m".
	RunTimeout string `yaml:"run_timeout" json:"run_timeout" koanf:"run_timeout" validate:"required,duration"`
}

// StorageConfig selects where records are kept.
type StorageConfig struct {
	Path     string `yaml:"path" json:"path" koanf:"path" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"in_memory" json:"in_memory" koanf:"in_memory"`
}

// LoggingConfig configures the global logger and the rotating log files.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level" koanf:"level" validate:"required,oneof=debug info notice warning error"`
	Format   string `yaml:"format" json:"format" koanf:"format" validate:"required,oneof=console json"`
	Dir      string `yaml:"dir" json:"dir" koanf:"dir"`
	MaxFiles int    `yaml:"max_files" json:"max_files" koanf:"max_files" validate:"gte=1,lte=365"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the admin API.
	Listen string `yaml:"listen" json:"listen" koanf:"listen" validate:"required,hostname_port"`

	BasicAuth BasicAuthConfig `yaml:"basic_auth" json:"basic_auth" koanf:"basic_auth"`
	Tuxedo    TuxedoConfig    `yaml:"tuxedo" json:"tuxedo" koanf:"tuxedo"`
	Import    ImportConfig    `yaml:"import" json:"import" koanf:"import"`
	Storage   StorageConfig   `yaml:"storage" json:"storage" koanf:"storage"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging" koanf:"logging"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: "127.0.0.1:8080",
		Tuxedo: TuxedoConfig{
			BaseURI: tuxedo.DefaultBaseURI,
			Active:  true,
			Timeout: tuxedo.DefaultTimeout.String(),
		},
		Import: ImportConfig{
			Timezone:   "America/Toronto",
			Locale:     "fr_CA",
			Refresh:    "@every 12h",
			RunTimeout: "10m0s",
		},
		Storage: StorageConfig{
			Path: "/var/lib/showsync",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			Dir:      "/var/log/showsync",
			MaxFiles: 5,
		},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly. Active has no zero-value default; an explicit
// false in the file is kept.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Tuxedo.BaseURI == "" {
		c.Tuxedo.BaseURI = def.Tuxedo.BaseURI
	}
	if c.Tuxedo.Timeout == "" {
		c.Tuxedo.Timeout = def.Tuxedo.Timeout
	}
	if c.Import.Timezone == "" {
		c.Import.Timezone = def.Import.Timezone
	}
	if c.Import.Locale == "" {
		c.Import.Locale = def.Import.Locale
	}
	if c.Import.Refresh == "" {
		c.Import.Refresh = def.Import.Refresh
	}
	if c.Import.RunTimeout == "" {
		c.Import.RunTimeout = def.Import.RunTimeout
	}
	if c.Storage.Path == "" && !c.Storage.InMemory {
		c.Storage.Path = def.Storage.Path
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Logging.MaxFiles <= 0 {
		c.Logging.MaxFiles = def.Logging.MaxFiles
	}
}

// TuxedoTimeout returns the parsed provider request timeout.
func (c *Config) TuxedoTimeout() time.Duration {
	return parseDurationOr(c.Tuxedo.Timeout, tuxedo.DefaultTimeout)
}

// RunTimeout returns the parsed overall run deadline.
func (c *Config) RunTimeout() time.Duration {
	return parseDurationOr(c.Import.RunTimeout, 10*time.Minute)
}

// Credentials returns the provider credentials.
func (c *Config) Credentials() tuxedo.Credentials {
	return tuxedo.Credentials{
		AccountName: c.Tuxedo.Account,
		Username:    c.Tuxedo.Username,
		Password:    c.Tuxedo.Password,
	}
}

// Redacted returns a copy safe to show in the admin UI.
func (c Config) Redacted() Config {
	if c.Tuxedo.Password != "" {
		c.Tuxedo.Password = RedactedSecret
	}
	if c.BasicAuth.Password != "" {
		c.BasicAuth.Password = RedactedSecret
	}
	return c
}

// RedactedSecret replaces non-empty passwords in Redacted copies.
const RedactedSecret = "********"

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".showsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
