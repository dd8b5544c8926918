// Package config loads project configuration from vela.yml in the project
// root, with environment variable overrides.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config represents the Vela project configuration
type Config struct {
	ProjectName string      `mapstructure:"project_name"`
	Build       BuildConfig `mapstructure:"build"`
}

// BuildConfig represents build configuration
type BuildConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	Target      string `mapstructure:"target"`
	Incremental bool   `mapstructure:"incremental"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// Load loads the configuration from vela.yml or vela.yaml
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("build.output_dir", "target/vela")
	v.SetDefault("build.incremental", true)
	v.SetDefault("build.max_jobs", 0)

	v.SetConfigName("vela")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VELA")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
