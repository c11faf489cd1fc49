// Package id generates compact random identifiers.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random UUIDv4 encoded as 26 lowercase base32 characters.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// NewPrefixedID returns NewID with a readable prefix such as "turn_".
func NewPrefixedID(prefix string) (string, error) {
	value, err := NewID()
	if err != nil {
		return "", err
	}
	return prefix + value, nil
}
