package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MEALGEN"

// LoadOptions locates optional configuration sources.
type LoadOptions struct {
	// File is a YAML config file. Empty skips file loading.
	File string

	// EnvFile is a .env file loaded into the process environment before
	// variables are read. Existing variables are not overwritten. A
	// missing file is ignored.
	EnvFile string
}

// Load builds a validated Config.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := newViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", opts.File, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.expandSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, ignoring the environment.
func Default() *Config {
	v := newViper()
	var cfg Config
	// Defaults decode into Config by construction.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func (c *Config) expandSecrets() error {
	for name, field := range map[string]*string{
		"store.dsn":            &c.Store.DSN,
		"store.redis.password": &c.Store.Redis.Password,
		"generator.api_key":    &c.Generator.APIKey,
		"generator.endpoint":   &c.Generator.Endpoint,
	} {
		expanded, err := ExpandEnvStrict(*field)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		*field = expanded
	}
	return nil
}
