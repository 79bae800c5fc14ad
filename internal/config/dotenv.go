package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads ".env.<environment>" and then ".env" from dir into the
// process environment. Variables that are already set are never
// overridden, and the environment-specific file wins over the generic one.
// It returns the files that were loaded.
func LoadDotEnv(dir, environment string) ([]string, error) {
	candidates := []string{".env"}
	if environment != "" {
		candidates = []string{".env." + environment, ".env"}
	}

	var loaded []string
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("failed to load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// ReadDotEnvValue returns key from the .env files in dir without touching
// the process environment. It is used to find ENVIRONMENT before the
// environment-specific file can be chosen.
func ReadDotEnvValue(dir, key string) (string, bool) {
	values, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil {
		return "", false
	}
	v, ok := values[key]
	return v, ok
}
