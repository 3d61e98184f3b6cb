// Package kv is the key-value contract the client stores persist through. A
// session-scoped backend lives for one browser client; a durable backend
// outlives it.
package kv

import (
	"context"
	"fmt"
	"strings"
)

// Store is the get/set/remove surface shared by every backend. A missing key is
// reported through the boolean, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Scope selects the lifetime of a record family.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeDurable Scope = "durable"
)

// ParseScope converts raw configuration into a Scope.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case ScopeSession:
		return ScopeSession, nil
	case ScopeDurable:
		return ScopeDurable, nil
	}
	return "", fmt.Errorf("invalid storage scope %q", value)
}

// Join builds a colon separated key, skipping empty parts.
func Join(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clean = append(clean, part)
	}
	return strings.Join(clean, ":")
}

type namespaced struct {
	prefix string
	next   Store
}

// Namespaced prefixes every key with the joined parts before delegating.
func Namespaced(next Store, parts ...string) Store {
	return &namespaced{prefix: Join(parts...), next: next}
}

func (n *namespaced) key(key string) string {
	return Join(n.prefix, key)
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.next.Get(ctx, n.key(key))
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.next.Set(ctx, n.key(key), value)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.next.Remove(ctx, n.key(key))
}
