// file: internal/config/dotenv.go
// version: 1.0.0
// guid: 71b4e8d2-3c5a-4f09-9e6b-c2a0d7f58e13

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
)

// LoadDotEnv exports the variables of a .env file so FILESYNC_* overrides can
// live next to the binary. Variables already set in the environment win. A
// missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Printf("[INFO] Loaded environment from %s", path)
	return nil
}
