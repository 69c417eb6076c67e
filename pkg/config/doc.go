// Package config loads application configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: values
// come from one or more .env files plus the process environment, and are
// parsed into any struct annotated with `env` tags. Each config type is
// parsed once per process and cached, so concurrent callers always observe
// the same configuration.
//
//	type ServerConfig struct {
//	    Addr string `env:"CHURND_ADDR" envDefault:":8080"`
//	}
//
//	var cfg ServerConfig
//	config.MustLoad(&cfg)
//
// Sentinel errors (ErrParsingConfig, ErrLoadingEnvFile, ErrNilPointer) can
// be tested with errors.Is. ResetCache exists for tests that change the
// environment between loads.
package config
