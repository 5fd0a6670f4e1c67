package auth

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	JWKSURL         string        `mapstructure:"JWKSURL"`
	Issuer          string        `mapstructure:"Issuer"`
	Audience        string        `mapstructure:"Audience"`
	RefreshInterval time.Duration `mapstructure:"RefreshInterval"`
	Leeway          time.Duration `mapstructure:"Leeway"`
}

func NewConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot read config from %s: %w", path, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("JWKSURL is required")
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = time.Hour
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 30 * time.Second
	}

	return &cfg, nil
}
