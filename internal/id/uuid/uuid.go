// Package uuid issues evaluation identities.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 strings. v7 ids sort by creation time, which keeps
// registry listings in submission order.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate evaluation id: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether id parses as a UUID. The service uses it to reject
// malformed path parameters before touching the registry.
func Valid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
