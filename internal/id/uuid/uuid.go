// Package uuid generates traversal identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 strings, optionally prefixed so the
// owning entity is recognisable in logs and event streams.
type Generator struct {
	prefix string
}

// New creates a Generator. An empty prefix yields bare UUIDs.
func New(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns a new identifier.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return g.prefix + id.String(), nil
}

// Parse strips the prefix from id and returns the underlying UUID.
func (g *Generator) Parse(id string) (uuid.UUID, error) {
	if len(id) < len(g.prefix) || id[:len(g.prefix)] != g.prefix {
		return uuid.Nil, fmt.Errorf("id %q lacks prefix %q", id, g.prefix)
	}
	u, err := uuid.Parse(id[len(g.prefix):])
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	return u, nil
}
