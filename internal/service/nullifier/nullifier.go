// Package nullifier is the double-spend registry. A nullifier record may be
// stored once per spend key; presenting an already stored spend again flags
// the owner that claimed it first.
package nullifier

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	repo "iou_ledger/internal/repository/nullifier"
	"iou_ledger/internal/repository/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// KeyMode selects which fields make a nullifier record unique.
type KeyMode string

const (
	// KeyModeState makes the state alone unique.
	KeyModeState KeyMode = "state"
	// KeyModePair makes the (nullifier, state) pair unique.
	KeyModePair KeyMode = "pair"
)

func ParseKeyMode(s string) (KeyMode, error) {
	switch m := KeyMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return KeyModeState, nil
	case KeyModeState, KeyModePair:
		return m, nil
	}
	return "", fmt.Errorf("unknown nullifier key mode %q", s)
}

type Outcome string

const (
	OutcomeFlagged  Outcome = "flagged"
	OutcomeFresh    Outcome = "fresh"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// ErrStateMismatch is returned by Check in state mode when the nullifier is
// stored under a different state. It is a fault.ErrConflict.
var ErrStateMismatch = fmt.Errorf("nullifier stored with a different state: %w", fault.ErrConflict)

type (
	// Flagger marks users that presented an already claimed spend.
	Flagger interface {
		FlagDoubleSpend(ctx context.Context, username string) (bool, error)
	}

	Registry struct {
		nullifiers *repo.NullifierRepo
		flagger    Flagger
		mode       KeyMode
		logger     *zap.Logger
	}

	SubmitInput struct {
		Nullifier string
		Note      string
		Step      int32
		Owner     string
		State     string
	}

	Verification struct {
		Outcome Outcome
		// Record is the stored nullifier the check matched, if any.
		Record *model.Nullifier
		// Owner is set when the outcome is OutcomeFlagged.
		Owner string
		// NewlyFlagged is true only for the check that set the owner's flag.
		NewlyFlagged bool
	}
)

func NewRegistry(db store.Database, flagger Flagger, mode KeyMode, logger *zap.Logger) *Registry {
	if mode == "" {
		mode = KeyModeState
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		nullifiers: repo.NewNullifierRepo(db),
		flagger:    flagger,
		mode:       mode,
		logger:     logger,
	}
}

func (r *Registry) EnsureIndexes(ctx context.Context) error {
	return r.nullifiers.EnsureIndexes(ctx)
}

func (r *Registry) Mode() KeyMode {
	return r.mode
}

// SpendKey derives the uniqueness key of a nullifier record. Every field is
// length prefixed so distinct inputs never share an encoding.
func SpendKey(mode KeyMode, nullifier, state string) string {
	var buf []byte
	if mode == KeyModePair {
		buf = appendField(buf, nullifier)
	}
	buf = appendField(buf, state)

	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func appendField(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Submit stores a new nullifier record. A record with the same spend key
// already stored yields fault.ErrConflict, which is how a replay is told apart
// from the first legitimate spend.
func (r *Registry) Submit(ctx context.Context, in SubmitInput) (*model.Nullifier, error) {
	const op = "submit nullifier"

	for _, f := range [...]struct{ name, value string }{
		{"nullifier", in.Nullifier},
		{"note", in.Note},
		{"owner", in.Owner},
		{"state", in.State},
	} {
		if strings.TrimSpace(f.value) == "" {
			return nil, fault.Validation(op, "%s is required", f.name)
		}
	}
	if in.Step < 0 {
		return nil, fault.Validation(op, "step must not be negative")
	}

	n := &model.Nullifier{
		Nullifier: in.Nullifier,
		Note:      in.Note,
		Step:      in.Step,
		Owner:     in.Owner,
		State:     in.State,
		SpendKey:  SpendKey(r.mode, in.Nullifier, in.State),
	}
	if _, err := r.nullifiers.Create(ctx, n); err != nil {
		if errors.Is(err, fault.ErrConflict) {
			r.logger.Info("nullifier already claimed",
				zap.String("nullifier", in.Nullifier),
				zap.String("owner", in.Owner),
			)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Check looks for a stored claim of the same spend. A match is a replay: the
// owner recorded on the first claim is flagged and OutcomeFlagged returned.
// A replay is still reported as flagged when that owner is not a registered
// user; there is just nobody to mark.
// Flagging is idempotent, so repeated checks report the same outcome while
// only the first one has NewlyFlagged set.
//
// Store failures yield OutcomeError together with the error.
func (r *Registry) Check(ctx context.Context, nullifier, expectedState string) (*Verification, error) {
	const op = "check nullifier"

	if strings.TrimSpace(nullifier) == "" || strings.TrimSpace(expectedState) == "" {
		return &Verification{Outcome: OutcomeError}, fault.Validation(op, "nullifier and state are required")
	}

	stored, err := r.nullifiers.GetBySpendKey(ctx, SpendKey(r.mode, nullifier, expectedState))
	switch {
	case err == nil:
		return r.flag(ctx, op, stored)
	case !errors.Is(err, fault.ErrNotFound):
		return r.fail(op, nullifier, err)
	}

	stored, err = r.nullifiers.GetByNullifier(ctx, nullifier)
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return &Verification{Outcome: OutcomeNotFound}, nil
	case err != nil:
		return r.fail(op, nullifier, err)
	}

	if r.mode == KeyModePair {
		return &Verification{Outcome: OutcomeFresh, Record: stored}, nil
	}

	r.logger.Warn("nullifier presented with a different state",
		zap.String("nullifier", nullifier),
		zap.String("owner", stored.Owner),
	)
	return &Verification{Outcome: OutcomeError, Record: stored},
		fmt.Errorf("%s %q: %w", op, nullifier, ErrStateMismatch)
}

func (r *Registry) flag(ctx context.Context, op string, stored *model.Nullifier) (*Verification, error) {
	newly, err := r.flagger.FlagDoubleSpend(ctx, stored.Owner)
	if errors.Is(err, fault.ErrNotFound) {
		r.logger.Warn("double spend by unregistered owner",
			zap.String("nullifier", stored.Nullifier),
			zap.String("owner", stored.Owner),
			zap.String("note", stored.Note),
		)
		return &Verification{Outcome: OutcomeFlagged, Record: stored, Owner: stored.Owner}, nil
	}
	if err != nil {
		return r.fail(op, stored.Nullifier, fmt.Errorf("flag owner %q: %w", stored.Owner, err))
	}

	if newly {
		r.logger.Warn("double spend detected, owner flagged",
			zap.String("nullifier", stored.Nullifier),
			zap.String("owner", stored.Owner),
			zap.String("note", stored.Note),
		)
	}
	return &Verification{
		Outcome:      OutcomeFlagged,
		Record:       stored,
		Owner:        stored.Owner,
		NewlyFlagged: newly,
	}, nil
}

func (r *Registry) fail(op, nullifier string, err error) (*Verification, error) {
	r.logger.Error("nullifier check failed", zap.String("nullifier", nullifier), zap.Error(err))
	return &Verification{Outcome: OutcomeError}, fmt.Errorf("%s %q: %w", op, nullifier, err)
}
