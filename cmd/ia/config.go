package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines the optional configuration file for the ia CLI.
// Values from the file are overridden by environment variables
// and command-line flags.
type Config struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UserAgent string `yaml:"user_agent"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
