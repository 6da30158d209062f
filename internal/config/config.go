// Package config loads the optional drill configuration file. Every value
// is a default for a command-line flag and only applies when that flag was
// not given explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/KHET-1/diamond-drill/internal/filter"
)

// Config represents the optional drill configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Dedup    DedupConfig    `toml:"dedup"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults shared by all commands.
type DefaultsConfig struct {
	Workers     *int    `toml:"workers" validate:"omitempty,min=1,max=1024"`
	StateDir    *string `toml:"state_dir" validate:"omitempty,min=1"`
	BlockSize   *string `toml:"block_size"`
	Retries     *int    `toml:"retries" validate:"omitempty,min=-1,max=32"`
	RetryDelay  *string `toml:"retry_delay"`
	BWLimit     *string `toml:"bwlimit"`
	HaltOnError *bool   `toml:"halt_on_error"`
	Log         *string `toml:"log"`
}

// DedupConfig tunes duplicate detection.
type DedupConfig struct {
	Mode          *string  `toml:"mode" validate:"omitempty,oneof=exact fuzzy both"`
	Threshold     *float64 `toml:"threshold" validate:"omitempty,gt=0,lte=1"`
	NameWeight    *float64 `toml:"name_weight" validate:"omitempty,gte=0,lte=1"`
	ContentWeight *float64 `toml:"content_weight" validate:"omitempty,gte=0,lte=1"`
}

// ThemeConfig holds optional color overrides.
type ThemeConfig struct {
	Green  *string `toml:"green" validate:"omitempty,hexcolor"`
	Yellow *string `toml:"yellow" validate:"omitempty,hexcolor"`
	Red    *string `toml:"red" validate:"omitempty,hexcolor"`
	Muted  *string `toml:"muted" validate:"omitempty,hexcolor"`
	Bright *string `toml:"bright" validate:"omitempty,hexcolor"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "drill", "config.toml")
}

// StateDir returns the default directory for run state: checkpoints and
// index databases.
func StateDir() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "drill")
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "drill")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path. A missing file
// yields a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and formats of every value that is set.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	for name, v := range map[string]*string{"block_size": c.Defaults.BlockSize, "bwlimit": c.Defaults.BWLimit} {
		if v == nil {
			continue
		}
		if _, err := filter.ParseSize(*v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Defaults.RetryDelay != nil {
		if _, err := time.ParseDuration(*c.Defaults.RetryDelay); err != nil {
			return fmt.Errorf("retry_delay: %w", err)
		}
	}
	return nil
}
