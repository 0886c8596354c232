package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads a .env file from the working directory, falling back to
// the directory of the executable. A missing file is not an error: the
// environment and the defaults in Load still apply.
func LoadEnvFiles() (string, error) {
	if err := godotenv.Load(); err == nil {
		return ".env", nil
	}

	ex, err := os.Executable()
	if err != nil {
		return "", err
	}

	envPath := filepath.Join(filepath.Dir(ex), ".env")
	if _, err := os.Stat(envPath); err != nil {
		return "", nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return "", err
	}
	return envPath, nil
}
