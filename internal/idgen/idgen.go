// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// GatePrefix is prepended to generated gate IDs.
var GatePrefix = "gate_"

// Alphabet defines the character set used for the random portion of the ID.
// Lowercase plus digits keeps IDs readable in logs and URLs.
var Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// NewGateID returns a new unique gate ID.
func NewGateID() (string, error) {
	return GenerateWithPrefix(GatePrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
