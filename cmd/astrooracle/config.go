package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/astrooracle"
	"github.com/hupe1980/astrooracle/logging"
)

// fileConfig mirrors the ASTRO_* environment variables.
type fileConfig struct {
	APIURL      string `yaml:"api_url"`
	Transport   string `yaml:"transport"`
	Model       string `yaml:"model"`
	SettleDelay string `yaml:"settle_delay"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// apply overlays the non-empty fields of c onto o.
func (c *fileConfig) apply(o *astrooracle.Options) error {
	if c.APIURL != "" {
		o.BaseURL = c.APIURL
	}
	if c.Transport != "" {
		o.Transport = c.Transport
	}
	if c.Model != "" {
		o.Model = c.Model
	}
	if c.SettleDelay != "" {
		d, err := time.ParseDuration(c.SettleDelay)
		if err != nil {
			return fmt.Errorf("settle_delay: %w", err)
		}
		o.SettleDelay = d
	}
	if c.LogLevel != "" {
		level, err := logging.ParseLevel(c.LogLevel)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		o.LogLevel = level
	}
	if c.LogFormat != "" {
		o.LogFormat = c.LogFormat
	}
	return nil
}
