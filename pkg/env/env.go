package env

import "os"

// Get reads key from the process environment, substituting fallback when the
// variable is unset or empty.
func Get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
