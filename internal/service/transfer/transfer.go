// Package transfer moves note history records between users.
//
// A transfer touches several records with no multi-document transaction, so
// it is run as a saga: a durable intent is written first and advanced after
// every committed step. Each step can be repeated safely, which lets the
// Reconciler finish transfers that stopped part way.
package transfer

import (
	"context"
	"fmt"
	"strings"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/store"
	"iou_ledger/internal/repository/transfer"
	"iou_ledger/internal/service/directory"
	"iou_ledger/internal/service/messages"
	"iou_ledger/internal/service/notes"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const opTransfer = "transfer note history"

const (
	StepStoreHistory = "store history"
	StepMoveHistory  = "move history"
	StepSendMessage  = "send message"
)

type (
	Orchestrator struct {
		intents   *transfer.IntentRepo
		users     *directory.Directory
		histories *notes.HistoryStore
		messages  *messages.Service
		logger    *zap.Logger
	}

	TransferInput struct {
		Sender    string
		Recipient string
		Payload   []byte
		Message   string
	}
)

func NewOrchestrator(
	db store.Database,
	users *directory.Directory,
	histories *notes.HistoryStore,
	msgs *messages.Service,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		intents:   transfer.NewIntentRepo(db),
		users:     users,
		histories: histories,
		messages:  msgs,
		logger:    logger,
	}
}

// Transfer stores payload as a new history record held by the recipient,
// moves it from the sender's history list to the recipient's, and sends the
// recipient a message carrying the record as attachment.
//
// Failing to store the record aborts the transfer with nothing to undo. A
// failure after that returns a *fault.PartialFailure; the intent keeps the
// last committed step for the Reconciler.
func (o *Orchestrator) Transfer(ctx context.Context, in TransferInput) (*model.Message, error) {
	if strings.TrimSpace(in.Sender) == "" || strings.TrimSpace(in.Recipient) == "" {
		return nil, fault.Validation(opTransfer, "sender and recipient are required")
	}
	if in.Sender == in.Recipient {
		return nil, fault.Validation(opTransfer, "cannot transfer to self")
	}
	if len(in.Payload) == 0 {
		return nil, fault.Validation(opTransfer, "note history is required")
	}

	sender, err := o.users.GetByUsername(ctx, in.Sender)
	if err != nil {
		return nil, fmt.Errorf("%s: sender: %w", opTransfer, err)
	}
	recipient, err := o.users.GetByUsername(ctx, in.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%s: recipient: %w", opTransfer, err)
	}

	intent := &model.TransferIntent{
		Sender:    sender.Username,
		Recipient: recipient.Username,
		Message:   in.Message,
		HistoryID: primitive.NewObjectID(),
		MessageID: primitive.NewObjectID(),
		State:     model.TransferPending,
		Attempts:  1,
	}
	if _, err := o.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("%s: %w", opTransfer, err)
	}

	history := &model.NoteHistory{
		ID:      intent.HistoryID,
		Data:    in.Payload,
		Address: recipient.Holder(),
		Sender:  sender.Username,
	}
	if err := o.histories.Put(ctx, history); err != nil {
		o.logger.Error("transfer aborted",
			zap.String("transfer_id", intent.ID.Hex()),
			zap.String("sender", sender.Username),
			zap.String("recipient", recipient.Username),
			zap.Error(err),
		)
		intent.LastError = err.Error()
		o.advance(ctx, intent, model.TransferAborted)
		return nil, fmt.Errorf("%s %s: %s: %w", opTransfer, intent.ID.Hex(), StepStoreHistory, err)
	}
	o.advance(ctx, intent, model.TransferHistoryStored)

	return o.finish(ctx, intent, sender, recipient)
}

// Resume continues intent from its last committed step. A pending intent
// whose history record was never stored is aborted.
func (o *Orchestrator) Resume(ctx context.Context, intent *model.TransferIntent) (*model.Message, error) {
	if intent.State.Terminal() {
		return nil, nil
	}

	sender, err := o.users.GetByUsername(ctx, intent.Sender)
	if err != nil {
		return nil, fmt.Errorf("resume %s: sender: %w", intent.ID.Hex(), err)
	}
	recipient, err := o.users.GetByUsername(ctx, intent.Recipient)
	if err != nil {
		return nil, fmt.Errorf("resume %s: recipient: %w", intent.ID.Hex(), err)
	}
	intent.Attempts++

	if intent.State == model.TransferPending {
		stored, err := o.histories.Exists(ctx, intent.HistoryID)
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", intent.ID.Hex(), err)
		}
		if !stored {
			intent.LastError = "history record never stored"
			o.advance(ctx, intent, model.TransferAborted)
			return nil, nil
		}
		o.advance(ctx, intent, model.TransferHistoryStored)
	}

	return o.finish(ctx, intent, sender, recipient)
}

func (o *Orchestrator) finish(ctx context.Context, intent *model.TransferIntent, sender, recipient *model.User) (*model.Message, error) {
	if intent.State == model.TransferHistoryStored {
		if _, err := o.users.Detach(ctx, sender, model.ListHistory, intent.HistoryID); err != nil {
			return nil, o.partial(ctx, intent, StepMoveHistory, err)
		}
		if err := o.users.Attach(ctx, recipient, model.ListHistory, intent.HistoryID); err != nil {
			return nil, o.partial(ctx, intent, StepMoveHistory, err)
		}
		o.advance(ctx, intent, model.TransferOwnershipMoved)
	}

	attachment := intent.HistoryID
	msg, err := o.messages.Send(ctx, messages.SendInput{
		ID:           intent.MessageID,
		Sender:       intent.Sender,
		Recipient:    intent.Recipient,
		Message:      intent.Message,
		AttachmentID: &attachment,
	})
	if err != nil {
		return nil, o.partial(ctx, intent, StepSendMessage, err)
	}

	intent.LastError = ""
	o.advance(ctx, intent, model.TransferCompleted)
	o.logger.Info("note history transferred",
		zap.String("transfer_id", intent.ID.Hex()),
		zap.String("history_id", intent.HistoryID.Hex()),
		zap.String("sender", intent.Sender),
		zap.String("recipient", intent.Recipient),
	)
	return msg, nil
}

func (o *Orchestrator) partial(ctx context.Context, intent *model.TransferIntent, step string, err error) error {
	pf := &fault.PartialFailure{
		Op:         opTransfer,
		Step:       step,
		TransferID: intent.ID.Hex(),
		RecordID:   intent.HistoryID.Hex(),
		Err:        err,
	}
	o.logger.Error("transfer partially applied",
		zap.String("transfer_id", pf.TransferID),
		zap.String("history_id", pf.RecordID),
		zap.String("message_id", intent.MessageID.Hex()),
		zap.String("step", step),
		zap.String("state", string(intent.State)),
		zap.String("sender", intent.Sender),
		zap.String("recipient", intent.Recipient),
		zap.Error(err),
	)

	intent.LastError = err.Error()
	o.advance(ctx, intent, intent.State)
	return pf
}

// advance records state on the intent. A failed write is logged and the
// transfer goes on: the steps are repeatable, so a stale intent only means
// the Reconciler repeats work.
func (o *Orchestrator) advance(ctx context.Context, intent *model.TransferIntent, state model.TransferState) {
	intent.State = state
	if err := o.intents.Save(ctx, intent); err != nil {
		o.logger.Warn("saving transfer intent failed",
			zap.String("transfer_id", intent.ID.Hex()),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}
