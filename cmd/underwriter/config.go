package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/suyash-sneo/underwriter"
)

// fileConfig is the on-disk shape of the shell configuration.
type fileConfig struct {
	underwriter.Config `yaml:",inline"`

	Store storeConfig `yaml:"store"`
}

type storeConfig struct {
	// Backend is one of redis, memory or bolt.
	Backend string      `yaml:"backend"`
	Redis   redisConfig `yaml:"redis"`
	Bolt    boltConfig  `yaml:"bolt"`
}

type redisConfig struct {
	Addr           string   `yaml:"addr"`
	SentinelAddrs  []string `yaml:"sentinelAddrs"`
	SentinelMaster string   `yaml:"sentinelMaster"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	DB             int      `yaml:"db"`
	KeyPrefix      string   `yaml:"keyPrefix"`
}

type boltConfig struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Config: underwriter.DefaultConfig(),
		Store: storeConfig{
			Backend: "redis",
			Redis:   redisConfig{Addr: "127.0.0.1:6379"},
			Bolt:    boltConfig{Path: "underwriter.db"},
		},
	}
}

// loadConfig overlays the YAML file at path onto the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c fileConfig) validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "redis", "memory":
	case "bolt":
		if c.Store.Bolt.Path == "" {
			return fmt.Errorf("store.bolt.path required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}
