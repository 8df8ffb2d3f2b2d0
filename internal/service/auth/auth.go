// Package auth logs users in with a signed challenge and tracks the resulting
// sessions in a TTL store.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"iou_ledger/internal/cryptographic/signature"
	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultChallengeTTL = 5 * time.Minute
	DefaultSessionTTL   = 24 * time.Hour

	challengeLength   = 32
	challengeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	challengePrefix = "challenge:"
	sessionPrefix   = "session:"
)

type (
	// Store holds string values with a time to live. Implementations return
	// fault.ErrNotFound for missing or expired keys and must make GetDel
	// atomic.
	Store interface {
		Set(ctx context.Context, key string, value string, ttl time.Duration) error
		Get(ctx context.Context, key string) (string, error)
		GetDel(ctx context.Context, key string) (string, error)
		Del(ctx context.Context, key string) error
	}

	Users interface {
		GetByUsername(ctx context.Context, username string) (*model.User, error)
	}

	Service struct {
		store        Store
		users        Users
		challengeTTL time.Duration
		sessionTTL   time.Duration
		logger       *zap.Logger
	}

	Option func(*Service)
)

func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.challengeTTL = ttl
		}
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, users Users, opts ...Option) *Service {
	s := &Service{
		store:        store,
		users:        users,
		challengeTTL: DefaultChallengeTTL,
		sessionTTL:   DefaultSessionTTL,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge returns a fresh random challenge for username to sign.
func (s *Service) IssueChallenge(ctx context.Context, username string) (string, error) {
	const op = "issue challenge"

	if strings.TrimSpace(username) == "" {
		return "", fault.Validation(op, "username is required")
	}
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	challenge, err := randomString(challengeLength)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.Set(ctx, challengePrefix+challenge, username, s.challengeTTL); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return challenge, nil
}

// VerifyChallenge consumes challenge and, when signatureHex is a valid
// signature of it by username's key, opens a session and returns its id.
func (s *Service) VerifyChallenge(ctx context.Context, username, challenge, signatureHex string) (string, error) {
	const op = "verify challenge"

	if username == "" || challenge == "" || signatureHex == "" {
		return "", fault.Validation(op, "username, challenge and signature are required")
	}

	owner, err := s.store.GetDel(ctx, challengePrefix+challenge)
	if errors.Is(err, fault.ErrNotFound) {
		return "", fmt.Errorf("%s: unknown or expired challenge: %w", op, fault.ErrUnauthorized)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if owner != username {
		return "", fmt.Errorf("%s: challenge issued to another user: %w", op, fault.ErrUnauthorized)
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if u.Pubkey == "" {
		return "", fmt.Errorf("%s: user has no public key: %w", op, fault.ErrUnauthorized)
	}

	if _, err := signature.ParsePublicKeyHex(u.Pubkey); err != nil {
		s.logger.Error("stored public key unusable", zap.String("user", username), zap.Error(err))
		return "", fmt.Errorf("%s: stored public key: %v: %w", op, err, fault.ErrUnauthorized)
	}

	ok, err := signature.VerifyHex(u.Pubkey, []byte(challenge), signatureHex)
	if err != nil {
		return "", fault.Validation(op, "%v", err)
	}
	if !ok {
		s.logger.Warn("challenge signature rejected", zap.String("user", username))
		return "", fmt.Errorf("%s: bad signature: %w", op, fault.ErrUnauthorized)
	}

	session := uuid.NewString()
	if err := s.store.Set(ctx, sessionPrefix+session, username, s.sessionTTL); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info("session opened", zap.String("user", username))
	return session, nil
}

// Session returns the username a live session belongs to.
func (s *Service) Session(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("session: %w", fault.ErrUnauthorized)
	}
	username, err := s.store.Get(ctx, sessionPrefix+id)
	if errors.Is(err, fault.ErrNotFound) {
		return "", fmt.Errorf("session: unknown or expired: %w", fault.ErrUnauthorized)
	}
	if err != nil {
		return "", fmt.Errorf("session: %w", err)
	}
	return username, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	if err := s.store.Del(ctx, sessionPrefix+id); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func randomString(n int) (string, error) {
	limit := big.NewInt(int64(len(challengeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = challengeAlphabet[idx.Int64()]
	}
	return string(b), nil
}
