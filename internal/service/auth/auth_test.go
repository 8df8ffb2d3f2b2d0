package auth

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"iou_ledger/internal/cryptographic/signature"
	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/service/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type users map[string]*model.User

func (u users) GetByUsername(_ context.Context, name string) (*model.User, error) {
	if user, ok := u[name]; ok {
		return user, nil
	}
	return nil, fault.ErrNotFound
}

func newService(t *testing.T) (*Service, []byte) {
	t.Helper()
	pub, priv, err := signature.NewEd25519Keypair()
	require.NoError(t, err)

	dir := users{
		"alice": {Username: "alice", Pubkey: hex.EncodeToString(pub)},
		"bob":   {Username: "bob"},
	}
	return NewService(cache.NewMemoryCache(), dir, WithSessionTTL(time.Hour)), priv
}

func sign(priv []byte, challenge string) string {
	return hex.EncodeToString(signature.ED25519Sign(priv, []byte(challenge)))
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, priv := newService(t)

	challenge, err := svc.IssueChallenge(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, challenge, 32)

	session, err := svc.VerifyChallenge(ctx, "alice", challenge, sign(priv, challenge))
	require.NoError(t, err)
	assert.NotEmpty(t, session)

	user, err := svc.Session(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	// a challenge is good for one login only
	_, err = svc.VerifyChallenge(ctx, "alice", challenge, sign(priv, challenge))
	assert.ErrorIs(t, err, fault.ErrUnauthorized)

	require.NoError(t, svc.Revoke(ctx, session))
	_, err = svc.Session(ctx, session)
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestVerifyChallenge_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, priv := newService(t)

	challenge, err := svc.IssueChallenge(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.VerifyChallenge(ctx, "alice", challenge, sign(priv, "something else"))
	assert.ErrorIs(t, err, fault.ErrUnauthorized)

	challenge, err = svc.IssueChallenge(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.VerifyChallenge(ctx, "bob", challenge, sign(priv, challenge))
	assert.ErrorIs(t, err, fault.ErrUnauthorized)

	challenge, err = svc.IssueChallenge(ctx, "bob")
	require.NoError(t, err)
	_, err = svc.VerifyChallenge(ctx, "bob", challenge, sign(priv, challenge))
	assert.ErrorIs(t, err, fault.ErrUnauthorized, "bob has no key")

	challenge, err = svc.IssueChallenge(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.VerifyChallenge(ctx, "alice", challenge, "not-hex")
	assert.ErrorIs(t, err, fault.ErrValidation)

	_, err = svc.IssueChallenge(ctx, "nobody")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestChallengeExpires(t *testing.T) {
	ctx := context.Background()
	pub, priv, err := signature.NewEd25519Keypair()
	require.NoError(t, err)
	dir := users{"alice": {Username: "alice", Pubkey: hex.EncodeToString(pub)}}
	svc := NewService(cache.NewMemoryCache(), dir, WithChallengeTTL(10*time.Millisecond))

	challenge, err := svc.IssueChallenge(ctx, "alice")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	_, err = svc.VerifyChallenge(ctx, "alice", challenge, sign(priv, challenge))
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestSession_Empty(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Session(context.Background(), "")
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
}

func TestVerifyChallenge_UnusableStoredKey(t *testing.T) {
	ctx := context.Background()
	_, priv, err := signature.NewEd25519Keypair()
	require.NoError(t, err)
	dir := users{"carol": {Username: "carol", Pubkey: "not-a-key"}}
	svc := NewService(cache.NewMemoryCache(), dir)

	challenge, err := svc.IssueChallenge(ctx, "carol")
	require.NoError(t, err)
	_, err = svc.VerifyChallenge(ctx, "carol", challenge, sign(priv, challenge))
	assert.ErrorIs(t, err, fault.ErrUnauthorized)
	assert.NotErrorIs(t, err, fault.ErrValidation)
}
