// Package notes stores notes and note history records and keeps the owning
// user's reference list in step with them.
//
// The record is always written before the reference. When the reference
// cannot be written the record exists but is unreachable from its owner; that
// is reported as a fault.PartialFailure carrying the record id.
package notes

import (
	"context"
	"fmt"
	"math"
	"strings"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/note"
	"iou_ledger/internal/repository/notehistory"
	"iou_ledger/internal/repository/store"
	"iou_ledger/internal/service/directory"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type (
	NoteStore struct {
		notes  *note.NoteRepo
		users  *directory.Directory
		logger *zap.Logger
	}

	HistoryStore struct {
		histories *notehistory.NoteHistoryRepo
		users     *directory.Directory
		logger    *zap.Logger
	}

	CreateNoteInput struct {
		AssetHash  string
		Owner      string
		Value      uint64
		Step       uint32
		ParentNote string
		OutIndex   string
		Blind      string
	}

	CreateHistoryInput struct {
		Data    []byte
		Address string
		Sender  string
	}
)

func NewNoteStore(db store.Database, users *directory.Directory, logger *zap.Logger) *NoteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteStore{notes: note.NewNoteRepo(db), users: users, logger: logger}
}

func NewHistoryStore(db store.Database, users *directory.Directory, logger *zap.Logger) *HistoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryStore{histories: notehistory.NewNoteHistoryRepo(db), users: users, logger: logger}
}

// Create stores a note and appends it to the notes list of the user whose
// pubkey is the note's owner.
func (s *NoteStore) Create(ctx context.Context, in CreateNoteInput) (*model.Note, error) {
	const op = "create note"

	if strings.TrimSpace(in.Owner) == "" {
		return nil, fault.Validation(op, "owner is required")
	}
	if strings.TrimSpace(in.AssetHash) == "" {
		return nil, fault.Validation(op, "asset_hash is required")
	}
	if in.Value > math.MaxInt64 {
		return nil, fault.Validation(op, "value %d does not fit a signed 64-bit integer", in.Value)
	}

	owner, err := s.users.GetByPubkey(ctx, in.Owner)
	if err != nil {
		return nil, fmt.Errorf("%s: owner: %w", op, err)
	}

	n := &model.Note{
		AssetHash:  in.AssetHash,
		Owner:      in.Owner,
		Value:      in.Value,
		Step:       in.Step,
		ParentNote: in.ParentNote,
		OutIndex:   in.OutIndex,
		Blind:      in.Blind,
	}
	if _, err := s.notes.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.Attach(ctx, owner, model.ListNotes, n.ID); err != nil {
		pf := &fault.PartialFailure{Op: op, Step: "push notes", RecordID: n.ID.Hex(), Err: err}
		s.logger.Error("note stored but not referenced by its owner",
			zap.String("note_id", n.ID.Hex()),
			zap.String("owner", owner.Username),
			zap.Error(err),
		)
		return n, pf
	}
	return n, nil
}

// ListByOwner returns the notes owned by the given pubkey. A nil step returns
// every step.
func (s *NoteStore) ListByOwner(ctx context.Context, owner string, step *uint32) ([]model.Note, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fault.Validation("list notes", "owner is required")
	}
	return s.notes.ListByOwner(ctx, owner, step)
}

// Create stores a history record and appends it to the history list of the
// user it is addressed to, matched by address or else by username.
func (s *HistoryStore) Create(ctx context.Context, in CreateHistoryInput) (*model.NoteHistory, error) {
	const op = "create note history"

	if strings.TrimSpace(in.Address) == "" {
		return nil, fault.Validation(op, "address is required")
	}
	if len(in.Data) == 0 {
		return nil, fault.Validation(op, "data is required")
	}

	holder, err := s.users.GetByHolder(ctx, in.Address)
	if err != nil {
		return nil, fmt.Errorf("%s: holder: %w", op, err)
	}

	h := &model.NoteHistory{
		Data:    in.Data,
		Address: in.Address,
		Sender:  in.Sender,
	}
	if _, err := s.histories.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.Attach(ctx, holder, model.ListHistory, h.ID); err != nil {
		s.logger.Error("note history stored but not referenced by its holder",
			zap.String("history_id", h.ID.Hex()),
			zap.String("holder", holder.Username),
			zap.Error(err),
		)
		return h, &fault.PartialFailure{Op: op, Step: "push history", RecordID: h.ID.Hex(), Err: err}
	}
	return h, nil
}

// Put stores h under its preset ID. Storing the same ID again is reported as
// success, so a transfer step can be repeated.
func (s *HistoryStore) Put(ctx context.Context, h *model.NoteHistory) error {
	if h.ID.IsZero() {
		return fault.Validation("put note history", "id is required")
	}
	_, err := s.histories.Create(ctx, h)
	if err == nil {
		return nil
	}
	if _, getErr := s.histories.GetByID(ctx, h.ID); getErr == nil {
		return nil
	}
	return err
}

func (s *HistoryStore) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	_, err := s.histories.GetByID(ctx, id)
	switch fault.KindOf(err) {
	case "":
		return true, nil
	case fault.KindNotFound:
		return false, nil
	}
	return false, err
}

// ListForUser resolves the user's history list in order. Referenced records
// that no longer resolve are logged and skipped.
func (s *HistoryStore) ListForUser(ctx context.Context, username string) ([]model.NoteHistory, error) {
	const op = "list note history"

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]model.NoteHistory, 0, len(u.History))
	for _, id := range u.History {
		h, err := s.histories.GetByID(ctx, id)
		if fault.KindOf(err) == fault.KindNotFound {
			s.logger.Warn("dangling note history reference",
				zap.String("user", username),
				zap.String("history_id", id.Hex()),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *h)
	}
	return out, nil
}
