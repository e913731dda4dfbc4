// Package session provides the token -> username session registry
// consulted on every authenticated request.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates a token that was never issued or no longer
// resolves (process restart for the memory registry, expiry or
// revocation for the Redis one).
var ErrNotFound = errors.New("session not found")

// Registry binds opaque bearer tokens to usernames. Create must return
// tokens whose collision probability is cryptographically negligible.
type Registry interface {
	Create(ctx context.Context, username string) (string, error)
	Resolve(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	Ping(ctx context.Context) error
}

// NewToken returns a fresh 256-bit random token, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// MemoryRegistry is the default registry: process-wide, never
// persisted, reset to empty on process start. Sessions have no expiry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	byToken map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{byToken: make(map[string]string)}
}

func (r *MemoryRegistry) Create(ctx context.Context, username string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.byToken[token] = username
	r.mu.Unlock()
	return token, nil
}

func (r *MemoryRegistry) Resolve(ctx context.Context, token string) (string, error) {
	r.mu.RLock()
	username, ok := r.byToken[token]
	r.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return username, nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, token string) error {
	r.mu.Lock()
	delete(r.byToken, token)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Ping(ctx context.Context) error {
	return nil
}
