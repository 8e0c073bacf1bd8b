// Package auth stores the bearer token used against the investigation API.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrEmptyToken is returned by Set for a blank token.
var ErrEmptyToken = errors.New("auth: empty token")

// Claims is the subset of token claims shown by the console.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero if the token carries no exp claim
}

// Store holds the current bearer token. When created with a path the token
// is persisted to that file so it survives restarts. Safe for concurrent use.
type Store struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	token string
}

// NewStore returns a Store backed by path (empty for memory only). An
// existing token file is loaded.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	s.token = strings.TrimSpace(string(data))
	return s, nil
}

// Token returns the stored token and whether one is present.
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Authenticated reports whether a token is stored.
func (s *Store) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// Set stores token, replacing any previous one.
func (s *Store) Set(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
		if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
			return fmt.Errorf("write token file: %w", err)
		}
	}
	s.token = token
	return nil
}

// Clear forgets the token and removes the token file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.token != ""
	s.token = ""
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove token file: %w", err)
		}
	}
	if had {
		s.logger.Info("credential cleared")
	}
	return nil
}

// Claims decodes the stored token's claims. See ParseClaims.
func (s *Store) Claims() (Claims, bool) {
	token, ok := s.Token()
	if !ok {
		return Claims{}, false
	}
	return ParseClaims(token)
}

// ParseClaims decodes a token's JWT claims without verifying the signature;
// the API is the verifier. It reports false for opaque (non-JWT) tokens.
func ParseClaims(token string) (Claims, bool) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, false
	}
	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, true
}

// Expired reports whether the stored token carries an exp claim at or
// before now. Opaque tokens never expire client-side.
func (s *Store) Expired(now time.Time) bool {
	c, _ := s.Claims()
	return c.Expired(now)
}

// Expired reports whether c carries an exp claim at or before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
