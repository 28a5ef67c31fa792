// Package util holds small environment-configuration helpers
// (GetInt(name, default), GetString(name, default)). No package in
// this module calls them.
package util

import (
	"os"
	"strconv"
)

// GetInt reads an integer from the named environment variable, falling
// back to def if unset or unparsable.
func GetInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetString reads a string from the named environment variable, falling
// back to def if unset.
func GetString(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
