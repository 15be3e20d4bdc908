package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	appLog "showsync/internal/log"
)

// EnvPrefix marks environment overrides, e.g. SHOWSYNC_TUXEDO_PASSWORD.
const EnvPrefix = "SHOWSYNC_"

// sections are the nested config keys; env names are matched against them
// longest first so SHOWSYNC_BASIC_AUTH_USERNAME maps to basic_auth.username.
var sections = []string{"basic_auth", "tuxedo", "import", "storage", "logging"}

// Load reads configuration in layers: defaults, then the YAML file at path,
// then SHOWSYNC_* environment variables.
//
// If the file does not exist it is created with defaults and 0600
// permissions before the environment layer is applied.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		appLog.Info("created default config", "path", path)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config file %s: %w", path, err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps SHOWSYNC_TUXEDO_BASE_URI to tuxedo.base_uri.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}
