// Package names resolves chat-platform user IDs to display names.
package names

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a resolver knows nothing about the user.
	ErrNotFound = errors.New("display name not found")
	// ErrLookup wraps failures of a remote lookup.
	ErrLookup = errors.New("display name lookup failed")
)

// Resolver maps a user ID to a display name.
type Resolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// StaticResolver serves names from a fixed map.
type StaticResolver map[string]string

// DisplayName implements Resolver.
func (s StaticResolver) DisplayName(_ context.Context, userID string) (string, error) {
	if name, ok := s[userID]; ok && name != "" {
		return name, nil
	}
	return "", ErrNotFound
}
