package transfer

import (
	"context"
	"time"

	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"
	"iou_ledger/internal/repository/transfer"

	"go.uber.org/zap"
)

type Reconciler struct {
	intents      *transfer.IntentRepo
	orchestrator *Orchestrator
	grace        time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewReconciler only touches intents that have not changed for grace, so it
// does not race transfers that are still running.
func NewReconciler(db store.Database, o *Orchestrator, grace time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		intents:      transfer.NewIntentRepo(db),
		orchestrator: o,
		grace:        grace,
		logger:       logger,
		now:          time.Now,
	}
}

// ReconcileOnce resumes every stale unfinished intent and returns how many
// reached a terminal state.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.grace)
	settled := 0

	for _, state := range []model.TransferState{
		model.TransferPending,
		model.TransferHistoryStored,
		model.TransferOwnershipMoved,
	} {
		intents, err := r.intents.ListByState(ctx, state)
		if err != nil {
			return settled, err
		}

		for i := range intents {
			intent := &intents[i]
			if !intent.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return settled, err
			}

			if _, err := r.orchestrator.Resume(ctx, intent); err != nil {
				r.logger.Error("reconcile transfer failed",
					zap.String("transfer_id", intent.ID.Hex()),
					zap.String("state", string(intent.State)),
					zap.Int32("attempts", intent.Attempts),
					zap.Error(err),
				)
				continue
			}
			settled++
		}
	}
	return settled, nil
}

// Start runs ReconcileOnce every interval until ctx is done.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := r.ReconcileOnce(ctx)
				if err != nil {
					r.logger.Error("reconcile pass failed", zap.Error(err))
					continue
				}
				if n > 0 {
					r.logger.Info("reconciled transfers", zap.Int("settled", n))
				}
			}
		}
	}()
}
