package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"iou_ledger/internal/cryptographic/signature"
	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
)

func (c *App) keyPath(username string) string {
	return filepath.Join(c.keyDir, username+".key")
}

// loadKey returns the signing key stored for username, or nil if there is none.
func (c *App) loadKey(username string) ([]byte, error) {
	data, err := os.ReadFile(c.keyPath(username))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(string(data))
}

func (c *App) saveKey(username string, priv []byte) error {
	if err := os.MkdirAll(c.keyDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(c.keyPath(username), []byte(hex.EncodeToString(priv)), 0o600)
}

func (c *App) getUserAndCreateIfNotExist(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := c.post(ctx, "/getUser", map[string]string{"username": username}, "user", &user)
	if err == nil {
		priv, err := c.loadKey(username)
		if err != nil {
			return nil, err
		}
		c.privKey = priv
		return &user, nil
	}
	if !errors.Is(err, fault.ErrNotFound) {
		return nil, err
	}

	pub, priv, err := signature.NewEd25519Keypair()
	if err != nil {
		return nil, err
	}

	err = c.post(ctx, "/createUser", map[string]any{
		"username": username,
		"pubkey":   hex.EncodeToString(pub),
		"nonce":    "0",
	}, "user", &user)
	if err != nil {
		return nil, err
	}

	if err := c.saveKey(username, priv); err != nil {
		return nil, fmt.Errorf("user created but key not saved: %w", err)
	}
	c.privKey = priv
	return &user, nil
}

// login signs a server challenge and keeps the resulting session for later
// requests. Without a stored key there is nothing to sign with, so the client
// stays anonymous.
func (c *App) login(ctx context.Context, username string) error {
	if c.privKey == nil {
		return nil
	}

	var challenge string
	if err := c.post(ctx, "/challenge", map[string]string{"username": username}, "challenge", &challenge); err != nil {
		return err
	}

	var session string
	err := c.post(ctx, "/verifyChallenge", map[string]string{
		"username":      username,
		"challenge":     challenge,
		"signature_hex": hex.EncodeToString(signature.ED25519Sign(c.privKey, []byte(challenge))),
	}, "session_id", &session)
	if err != nil {
		return err
	}
	c.session = session
	return nil
}
