package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

// SessionHeader carries the session id on gateway requests.
const SessionHeader = "X-Session-ID"

// ErrNotSignedIn is returned for a missing, expired or purged session. It is
// a 401 rejection so callers map it like a backend 401.
var ErrNotSignedIn = &pharmaapi.RejectionError{Status: 401, Detail: "not signed in"}

var errSealedToken = errors.New("sealed token is corrupt")

// Vault seals bearer tokens at rest with a key derived from a secret.
type Vault struct{ key [32]byte }

func NewVault(secret string) *Vault {
	return &Vault{key: sha256.Sum256([]byte(secret))}
}

func (v *Vault) Seal(plain string) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plain), &nonce, &v.key), nil
}

func (v *Vault) Open(sealed []byte) (string, error) {
	if len(sealed) < 24 {
		return "", errSealedToken
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &v.key)
	if !ok {
		return "", errSealedToken
	}
	return string(plain), nil
}

// Session is an authenticated visitor.
type Session struct {
	ID        string         `json:"session_id"`
	User      pharmaapi.User `json:"user"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

type sessionEntry struct {
	Session
	sealed []byte
}

// Sessions holds bearer tokens by session id. A token is purged when the
// backend rejects it with 401 or its JWT exp claim has passed.
type Sessions struct {
	vault *Vault
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

func NewSessions(vault *Vault) *Sessions {
	return &Sessions{vault: vault, now: time.Now, entries: make(map[string]*sessionEntry)}
}

// Create stores token for user and returns the new session.
func (s *Sessions) Create(token string, user pharmaapi.User) (*Session, error) {
	sealed, err := s.vault.Seal(token)
	if err != nil {
		return nil, err
	}
	e := &sessionEntry{
		Session: Session{ID: uuid.NewString(), User: user, CreatedAt: s.now().UTC()},
		sealed:  sealed,
	}
	if exp, ok := tokenExpiry(token); ok {
		e.ExpiresAt = &exp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	sess := e.Session
	return &sess, nil
}

func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.live(id)
	if err != nil {
		return nil, err
	}
	sess := e.Session
	return &sess, nil
}

func (s *Sessions) SetUser(id string, user pharmaapi.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.User = user
	}
}

func (s *Sessions) Purge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// WithToken runs fn with the session's bearer token. A 401 from fn purges
// the session before returning.
func (s *Sessions) WithToken(ctx context.Context, id string, fn func(token string) error) error {
	s.mu.Lock()
	e, err := s.live(id)
	var sealed []byte
	if err == nil {
		sealed = e.sealed
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	token, err := s.vault.Open(sealed)
	if err != nil {
		s.Purge(id)
		return ErrNotSignedIn
	}
	if err := fn(token); err != nil {
		if pharmaapi.IsUnauthorized(err) {
			s.Purge(id)
		}
		return err
	}
	return nil
}

// live returns the entry for id, purging it if expired. Callers hold mu.
func (s *Sessions) live(id string) (*sessionEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotSignedIn
	}
	if e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt) {
		delete(s.entries, id)
		return nil, ErrNotSignedIn
	}
	return e, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend remains the authority on validity. Opaque tokens have no expiry.
func tokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.StandardClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == 0 {
		return time.Time{}, false
	}
	return time.Unix(claims.ExpiresAt, 0).UTC(), true
}
