package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings for the triox client.
type Config struct {
	ServerEndpointAddr string        `env:"TRIOX_SERVER_ADDR"`
	AccessToken        string        `env:"TRIOX_ACCESS_TOKEN"`
	Timeout            time.Duration `env:"TRIOX_TIMEOUT"`
	AssumeYes          bool          `env:"-"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Timeout = 10 * time.Second
}

// Load applies defaults, the JSON file, environment and flags from args, in
// that order, and checks that an access token is present.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("access token is required (-token or TRIOX_ACCESS_TOKEN)")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("timeout must be positive")
	}
	return cfg, nil
}

// LoadConfig is Load over the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
