package logger

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds logging configuration
type Config struct {
	Level          string `yaml:"level" env:"LOG_LEVEL"`
	ConsoleEnabled bool   `yaml:"console_enabled" env:"LOG_CONSOLE_ENABLED"`
	ConsoleFormat  string `yaml:"console_format" env:"LOG_CONSOLE_FORMAT"`
	FileEnabled    bool   `yaml:"file_enabled" env:"LOG_FILE_ENABLED"`
	FilePath       string `yaml:"file_path" env:"LOG_FILE_PATH"`
	FileFormat     string `yaml:"file_format" env:"LOG_FILE_FORMAT"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// fileConfig is the part of the simulator config file the logger reads.
type fileConfig struct {
	Logging Config `yaml:"logging"`
}

// DefaultConfig logs text at INFO to stdout only.
func DefaultConfig() Config {
	return Config{
		Level:          "INFO",
		ConsoleEnabled: true,
		ConsoleFormat:  "text",
		FileEnabled:    false,
		FilePath:       "logs/boatsim.log",
		FileFormat:     "text",
		FileMaxSizeMB:  10,
		FileMaxBackups: 5,
		FileMaxAgeDays: 30,
	}
}

// LoadConfig reads the logging section of the YAML file at configPath and
// applies LOG_* environment overrides. A missing or unreadable file keeps the
// defaults, so logging can come up before the rest of the config is checked.
func LoadConfig(configPath string) (Config, error) {
	wrapper := fileConfig{Logging: DefaultConfig()}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, &wrapper); err != nil {
				wrapper.Logging = DefaultConfig()
			}
		}
	}

	config := wrapper.Logging
	if err := env.Parse(&config); err != nil {
		return config, fmt.Errorf("parse logging env: %w", err)
	}

	return config, nil
}
