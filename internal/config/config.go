// Package config содержит логику чтения конфигурации библиотечного сервиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации библиотечного сервиса.
type Config struct {
	RunAddress         string        `env:"RUN_ADDRESS"`
	DatabaseURI        string        `env:"DATABASE_URI"`
	MailGatewayAddress string        `env:"MAIL_GATEWAY_ADDRESS"`
	AuthSecret         string        `env:"AUTH_SECRET"`
	SweepInterval      time.Duration `env:"SWEEP_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envMailGateway := cfg.MailGatewayAddress
	envAuthSecret := cfg.AuthSecret
	envSweepInterval := cfg.SweepInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MailGatewayAddress, "m", "", "mail gateway address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth cookies")
	flag.DurationVar(&cfg.SweepInterval, "i", time.Minute, "interval between maintenance sweeps")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envMailGateway != "" {
		cfg.MailGatewayAddress = envMailGateway
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envSweepInterval != 0 {
		cfg.SweepInterval = envSweepInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return cfg, nil
}
