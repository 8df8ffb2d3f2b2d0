// Package directory resolves users by username or address and maintains
// their ordered reference lists.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"iou_ledger/internal/cryptographic/signature"
	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/ownership"
	"iou_ledger/internal/repository/store"
	"iou_ledger/internal/repository/user"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type (
	Directory struct {
		users     *user.UserRepo
		ownership *ownership.OwnershipRepo
	}

	CreateInput struct {
		Username string
		Pubkey   string
		Address  string
		Nonce    string
		Notes    []string
		Messages []string
	}
)

func New(db store.Database) *Directory {
	return &Directory{
		users:     user.NewUserRepo(db),
		ownership: ownership.NewOwnershipRepo(db),
	}
}

func (d *Directory) EnsureIndexes(ctx context.Context) error {
	if err := d.users.EnsureIndexes(ctx); err != nil {
		return err
	}
	return d.ownership.EnsureIndexes(ctx)
}

// Create registers a user. The unique username index decides races; the
// lookup beforehand only saves a write for the common duplicate.
func (d *Directory) Create(ctx context.Context, in CreateInput) (*model.User, error) {
	const op = "create user"

	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, fault.Validation(op, "username is required")
	}

	if in.Pubkey != "" {
		if _, err := signature.ParsePublicKeyHex(in.Pubkey); err != nil {
			return nil, fault.Validation(op, "pubkey: %v", err)
		}
	}

	notes, err := parseRefs(op, "notes", in.Notes)
	if err != nil {
		return nil, err
	}
	messages, err := parseRefs(op, "messages", in.Messages)
	if err != nil {
		return nil, err
	}

	_, err = d.users.GetByName(ctx, in.Username)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%s: username %q: %w", op, in.Username, fault.ErrConflict)
	case !errors.Is(err, fault.ErrNotFound):
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u := &model.User{
		Username:  in.Username,
		Pubkey:    in.Pubkey,
		Address:   in.Address,
		Nonce:     in.Nonce,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := d.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, ref := range notes {
		if err := d.ownership.Push(ctx, u.ID, model.ListNotes, ref); err != nil {
			return nil, &fault.PartialFailure{Op: op, Step: "push notes", RecordID: u.ID.Hex(), Err: err}
		}
	}
	for _, ref := range messages {
		if err := d.ownership.Push(ctx, u.ID, model.ListMessages, ref); err != nil {
			return nil, &fault.PartialFailure{Op: op, Step: "push messages", RecordID: u.ID.Hex(), Err: err}
		}
	}
	u.Notes = notes
	u.Messages = messages
	u.History = []primitive.ObjectID{}
	return u, nil
}

func (d *Directory) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := d.users.GetByName(ctx, username)
	if err != nil {
		return nil, err
	}
	return d.withLists(ctx, u)
}

func (d *Directory) GetByAddress(ctx context.Context, address string) (*model.User, error) {
	u, err := d.users.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	return d.withLists(ctx, u)
}

// GetByPubkey returns the user without materialising its lists.
func (d *Directory) GetByPubkey(ctx context.Context, pubkey string) (*model.User, error) {
	return d.users.GetByPubkey(ctx, pubkey)
}

// GetByHolder resolves the identity a note history is addressed to: an
// address first, then a username.
func (d *Directory) GetByHolder(ctx context.Context, holder string) (*model.User, error) {
	u, err := d.users.GetByAddress(ctx, holder)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, fault.ErrNotFound) {
		return nil, err
	}
	return d.users.GetByName(ctx, holder)
}

func (d *Directory) PushRef(ctx context.Context, username string, list model.List, ref primitive.ObjectID) error {
	u, err := d.lookup(ctx, "push ref", username, list)
	if err != nil {
		return err
	}
	return d.Attach(ctx, u, list, ref)
}

func (d *Directory) PullRef(ctx context.Context, username string, list model.List, ref primitive.ObjectID) (bool, error) {
	u, err := d.lookup(ctx, "pull ref", username, list)
	if err != nil {
		return false, err
	}
	return d.Detach(ctx, u, list, ref)
}

// Attach pushes ref onto the list of an already resolved user.
func (d *Directory) Attach(ctx context.Context, u *model.User, list model.List, ref primitive.ObjectID) error {
	if err := d.ownership.Push(ctx, u.ID, list, ref); err != nil {
		return fmt.Errorf("%s: %w", u.Username, err)
	}
	return nil
}

// Detach pulls ref from the list of an already resolved user.
func (d *Directory) Detach(ctx context.Context, u *model.User, list model.List, ref primitive.ObjectID) (bool, error) {
	removed, err := d.ownership.Pull(ctx, u.ID, list, ref)
	if err != nil {
		return false, fmt.Errorf("%s: %w", u.Username, err)
	}
	return removed, nil
}

// FlagDoubleSpend marks username as a double spender. It reports whether this
// call set the flag; flagging an already flagged user is not an error.
func (d *Directory) FlagDoubleSpend(ctx context.Context, username string) (bool, error) {
	flagged, err := d.users.FlagDoubleSpend(ctx, username, time.Now())
	if err != nil || flagged {
		return flagged, err
	}

	// nothing matched: either already flagged or no such user
	u, err := d.users.GetByName(ctx, username)
	if err != nil {
		return false, err
	}
	if !u.HasDoubleSpent {
		return false, fmt.Errorf("flag user %q: %w: flag not applied", username, fault.ErrStoreIO)
	}
	return false, nil
}

func (d *Directory) lookup(ctx context.Context, op, username string, list model.List) (*model.User, error) {
	if !list.Valid() {
		return nil, fault.Validation(op, "unknown list %q", list)
	}
	u, err := d.users.GetByName(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (d *Directory) withLists(ctx context.Context, u *model.User) (*model.User, error) {
	var err error
	if u.Notes, err = d.ownership.List(ctx, u.ID, model.ListNotes); err != nil {
		return nil, err
	}
	if u.History, err = d.ownership.List(ctx, u.ID, model.ListHistory); err != nil {
		return nil, err
	}
	if u.Messages, err = d.ownership.List(ctx, u.ID, model.ListMessages); err != nil {
		return nil, err
	}
	return u, nil
}

func parseRefs(op, field string, refs []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(refs))
	for _, r := range refs {
		id, err := primitive.ObjectIDFromHex(r)
		if err != nil {
			return nil, fault.Validation(op, "%s: %q is not an object id", field, r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
