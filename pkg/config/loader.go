package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]any)

	defaultEnvOnce sync.Once
)

// LoadEnv loads the named .env files into the process environment before
// parsing. Missing files are an error here, unlike the implicit default
// .env load which is best effort.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// Load parses environment variables into v based on its `env` field tags.
// The default .env file is loaded once per process if present. Each config
// type is parsed once and served from cache on subsequent calls, so every
// caller sees the same values regardless of later environment changes.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	defaultEnvOnce.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	key := typeName[T]()

	cacheMu.RLock()
	cached, ok := cache[key]
	cacheMu.RUnlock()
	if ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	cacheMu.Lock()
	// A concurrent Load may have won the race; keep its copy so all
	// callers agree.
	if cached, ok := cache[key]; ok {
		*v = cached.(T)
	} else {
		cache[key] = *v
	}
	cacheMu.Unlock()

	return nil
}

// MustLoad works like Load but panics on failure. Use for configuration
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ResetCache clears all cached configurations. Intended for tests that
// mutate the environment between loads.
func ResetCache() {
	cacheMu.Lock()
	cache = make(map[string]any)
	cacheMu.Unlock()
}

func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
