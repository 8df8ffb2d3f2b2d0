// Package messages delivers messages between users and drains inboxes.
package messages

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"iou_ledger/internal/fault"
	"iou_ledger/internal/model"
	"iou_ledger/internal/repository/message"
	"iou_ledger/internal/repository/store"
	"iou_ledger/internal/service/directory"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type (
	// Notifier is told about every delivered message. Notification is best
	// effort; the stored message is the source of truth.
	Notifier interface {
		Notify(ctx context.Context, msg *model.Message)
	}

	Service struct {
		messages *message.MessageRepo
		users    *directory.Directory
		notifier Notifier
		logger   *zap.Logger
		now      func() time.Time
	}

	SendInput struct {
		// ID is optional. A preset ID makes Send repeatable: a message already
		// stored under it is not stored twice.
		ID           primitive.ObjectID
		Sender       string
		Recipient    string
		Message      string
		AttachmentID *primitive.ObjectID
	}
)

func NewService(db store.Database, users *directory.Directory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		messages: message.NewMessageRepo(db),
		users:    users,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNotifier attaches n; nil detaches.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Send stores a message and appends it to the recipient's messages list.
// Repeating a Send with a preset ID notifies only if no earlier attempt
// reached the recipient's list.
func (s *Service) Send(ctx context.Context, in SendInput) (*model.Message, error) {
	const op = "send message"

	if strings.TrimSpace(in.Sender) == "" || strings.TrimSpace(in.Recipient) == "" {
		return nil, fault.Validation(op, "sender and recipient are required")
	}

	recipient, err := s.users.GetByUsername(ctx, in.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%s: recipient: %w", op, err)
	}

	msg := &model.Message{
		ID:           in.ID,
		Sender:       in.Sender,
		Recipient:    in.Recipient,
		Message:      in.Message,
		Timestamp:    s.now().Unix(),
		AttachmentID: in.AttachmentID,
	}
	delivered := false
	if _, err := s.messages.Create(ctx, msg); err != nil {
		if in.ID.IsZero() || !errors.Is(err, fault.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if msg, err = s.messages.GetByID(ctx, in.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// an earlier Send that got as far as the recipient's list has
		// already notified
		delivered = slices.Contains(recipient.Messages, msg.ID)
	}

	if err := s.users.Attach(ctx, recipient, model.ListMessages, msg.ID); err != nil {
		s.logger.Error("message stored but not referenced by its recipient",
			zap.String("message_id", msg.ID.Hex()),
			zap.String("recipient", in.Recipient),
			zap.Error(err),
		)
		return msg, &fault.PartialFailure{Op: op, Step: "push messages", RecordID: msg.ID.Hex(), Err: err}
	}

	if s.notifier != nil && !delivered {
		s.notifier.Notify(ctx, msg)
	}
	return msg, nil
}

// Read returns the unread messages of username oldest first and marks them
// read. A message whose mark fails is still returned but stays unread, so it
// is delivered again by the next Read.
func (s *Service) Read(ctx context.Context, username string) ([]model.Message, error) {
	const op = "read messages"

	if strings.TrimSpace(username) == "" {
		return nil, fault.Validation(op, "username is required")
	}

	unread, err := s.messages.ListUnread(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, m := range unread {
		if err := s.messages.MarkRead(ctx, m.ID); err != nil {
			s.logger.Warn("mark message read failed",
				zap.String("message_id", m.ID.Hex()),
				zap.String("recipient", username),
				zap.Error(err),
			)
		}
	}
	return unread, nil
}
