// Package credentials implements username/password registration and
// verification on top of the key-value store.
package credentials

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"notate/api/internal/store"
)

var (
	// ErrTaken indicates the username is already registered.
	ErrTaken = errors.New("username already registered")
	// ErrEmptyField indicates a blank username or password.
	ErrEmptyField = errors.New("username and password are required")
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so callers cannot probe for accounts.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// argon2id parameters. Changing these invalidates stored digests, so
// they are fixed rather than configurable.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

type record struct {
	Salt string `json:"salt"`
	Hash string `json:"password_hash"`
}

// Service is the credential store. Records are immutable once created:
// there is no password-change or delete flow.
type Service struct {
	kv store.KV

	// Serializes register's read-modify-write on the users mapping.
	mu sync.Mutex
}

func NewService(kv store.KV) *Service {
	return &Service{kv: kv}
}

// Register creates a new user with a fresh random salt.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return ErrEmptyField
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.kv.Load(ctx, store.Users, store.GlobalNamespace)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	if _, exists := users[username]; exists {
		return ErrTaken
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	rec := record{
		Salt: hex.EncodeToString(salt),
		Hash: hex.EncodeToString(digest(salt, password)),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal user record: %w", err)
	}
	users[username] = raw

	if err := s.kv.Save(ctx, store.Users, store.GlobalNamespace, users); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// Verify checks a username/password pair and returns the username as
// the authenticated principal.
func (s *Service) Verify(ctx context.Context, username, password string) (string, error) {
	users, err := s.kv.Load(ctx, store.Users, store.GlobalNamespace)
	if err != nil {
		return "", fmt.Errorf("load users: %w", err)
	}

	raw, ok := users[username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", ErrInvalidCredentials
	}
	salt, err := hex.DecodeString(rec.Salt)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	stored, err := hex.DecodeString(rec.Hash)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if subtle.ConstantTimeCompare(stored, digest(salt, password)) != 1 {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

func digest(salt []byte, password string) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
