package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env and, when env is set, .env.<env> on top of it.
// Variables already present in the process environment win.
func LoadEnv(env string) error {
	files := []string{}
	if env != "" {
		files = append(files, fmt.Sprintf(".env.%s", env))
	}
	files = append(files, ".env")

	var loaded bool
	var lastErr error
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			lastErr = err
			continue
		}
		if err := godotenv.Load(f); err != nil {
			lastErr = err
			continue
		}
		loaded = true
	}
	if !loaded {
		return lastErr
	}
	return nil
}

// GetEnv returns the trimmed value of an environment variable.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetIntEnv returns 0 when the variable is unset or not a number.
func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

// GetBoolEnv accepts 1/t/true/TRUE and friends.
func GetBoolEnv(key string) bool {
	return cast.ToBool(GetEnv(key))
}

// GetFloatEnv returns 0 when the variable is unset or malformed.
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(GetEnv(key))
}

// EnvName maps a dotted configuration key to its environment variable,
// e.g. "openai.api_key" -> "OPENAI_API_KEY".
func EnvName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return strings.ToUpper(r.Replace(strings.TrimSpace(key)))
}
