package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var loadDotEnv sync.Once

// Load parses environment variables into the given configuration struct
// based on `env` field tags. The default .env file, when present, is loaded
// into the process environment exactly once per process.
//
// Example:
//
//	type GatewayConfig struct {
//		KeyID         string `env:"GATEWAY_KEY_ID,required"`
//		KeySecret     string `env:"GATEWAY_KEY_SECRET,required"`
//		WebhookSecret string `env:"GATEWAY_WEBHOOK_SECRET,required"`
//	}
//
//	var cfg GatewayConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	loadDotEnv.Do(func() {
		// Missing .env files are fine; real environments set vars directly.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}
	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Use for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
