// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"
	"strconv"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of an ID.
// It excludes ':' so IDs are safe inside composite storage keys.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// ConfigPrefix is prepended to every keep-alive config ID.
	ConfigPrefix = "cfg_"
	// ConfigLength is the number of random characters in a config ID.
	ConfigLength = 12
	// TokenLength is the number of random characters in a user token.
	TokenLength = 24
)

// ConfigID returns a new keep-alive config identifier.
func ConfigID() (string, error) {
	return GenerateWithPrefix(ConfigPrefix, ConfigLength)
}

// UserToken returns a new opaque user token: the base-36 issue time
// followed by a random suffix.
func UserToken(now time.Time) (string, error) {
	return GenerateWithPrefix(strconv.FormatInt(now.UnixMilli(), 36), TokenLength)
}

// GenerateWithPrefix returns a new unique ID with the given prefix and random length.
func GenerateWithPrefix(prefix string, length int) (string, error) {
	id, err := nanoid.Generate(Alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
