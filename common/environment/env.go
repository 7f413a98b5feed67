// Package environment reads Hibiki configuration from the process environment.
//
// Values may come from the real environment or from dotenv files loaded with
// LoadFiles. Variables already present in the environment always win over
// values found in a file, so an operator can override a checked-in .env
// without editing it.
package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadFiles loads each dotenv file in order. Missing files are skipped; a file
// that exists but cannot be parsed is an error.
func LoadFiles(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// StringOr returns the named variable, or fallback when it is unset or empty.
func StringOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// BoolOr parses the named variable with strconv.ParseBool. Unset, empty and
// unparseable values yield fallback.
func BoolOr(name string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// DurationOr parses the named variable with time.ParseDuration ("15s",
// "1500ms"). Unset, empty, unparseable and non-positive values yield fallback.
func DurationOr(name string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ListOr splits the named variable on commas, trimming each element and
// dropping empty ones. When nothing is left, fallback is returned.
func ListOr(name string, fallback []string) []string {
	v := os.Getenv(name)
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
