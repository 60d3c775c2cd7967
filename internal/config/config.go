package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the global ~/.zapdesk/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session"`
	Backend        Backend       `toml:"backend"`
	Gateway        Gateway       `toml:"gateway"`
	Notifications  Notifications `toml:"notifications"`
}

// Backend points the daemon at the platform's microservices.
type Backend struct {
	BaseURL   string `toml:"base_url"`
	SocketURL string `toml:"socket_url"`
	Token     string `toml:"token"` // instance bearer token (JWT)
}

// Gateway configures the local HTTP surface the console UI connects to.
type Gateway struct {
	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Notifications configures message notification delivery.
type Notifications struct {
	Enabled bool `toml:"enabled"`
	Sound   bool `toml:"sound"`
	// SeenCacheSize bounds the duplicate-suppression cache. Zero means the
	// built-in default.
	SeenCacheSize int `toml:"seen_cache_size"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		Gateway:       Gateway{Listen: "127.0.0.1:8790"},
		Notifications: Notifications{Enabled: true, Sound: true},
	}
}

// Load reads config from the given path. A missing file is an error;
// callers decide whether to fall back to Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.SocketURL == "" {
		return fmt.Errorf("backend.socket_url is required")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
