// Package token issues and resolves capability tokens: opaque random strings
// that let an anonymous request act on behalf of exactly one client.
//
// Possession of a token is the credential. Tokens do not expire and are not
// revoked when a newer one is issued for the same client; callers must check
// that a resolved token is still the client's current one.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// byteLen is the entropy of a token in bytes (256 bits).
const byteLen = 32

var ErrTokenNotFound = errors.New("token not found")

// Record is the reverse-lookup row written once per issued token.
type Record struct {
	Token     string
	ClientID  uuid.UUID
	CreatedAt time.Time
}

// Repository persists token records.
type Repository interface {
	Create(ctx context.Context, rec Record) error
	Find(ctx context.Context, token string) (*Record, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Generate returns a fresh hex-encoded token. Uniqueness is probabilistic
// and is not checked against existing records.
func Generate() (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue creates a token for clientID and stores its reverse-lookup record.
func (s *Service) Issue(ctx context.Context, clientID uuid.UUID) (string, error) {
	tok, err := Generate()
	if err != nil {
		return "", err
	}

	rec := Record{Token: tok, ClientID: clientID, CreatedAt: s.now().UTC()}
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("store token record: %w", err)
	}
	return tok, nil
}

// Resolve maps a token back to the client it was issued for. Malformed
// tokens are reported as not found without touching the store.
func (s *Service) Resolve(ctx context.Context, tok string) (uuid.UUID, error) {
	if !wellFormed(tok) {
		return uuid.Nil, ErrTokenNotFound
	}

	rec, err := s.repo.Find(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("find token record: %w", err)
	}
	return rec.ClientID, nil
}

func wellFormed(tok string) bool {
	if len(tok) != hex.EncodedLen(byteLen) {
		return false
	}
	_, err := hex.DecodeString(tok)
	return err == nil
}
