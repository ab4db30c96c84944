package service

import (
	"context"
	"time"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// notifier stores in-app notifications and fans them out to the event bus.
// Rows are written inside the caller's transaction; events go out only after
// the caller commits, via publish.
type notifier struct {
	repo      repository.NotificationRepository
	publisher client.EventPublisher
	now       func() time.Time
}

type notificationEvent struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	OrderID   string                 `json:"orderId,omitempty"`
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	CreatedAt time.Time              `json:"createdAt"`
}

func newNotifier(repo repository.NotificationRepository, publisher client.EventPublisher) *notifier {
	return &notifier{repo: repo, publisher: publisher, now: time.Now}
}

// record returns nil without writing when userID is empty: guests have no inbox.
func (n *notifier) record(ctx context.Context, tx *gorm.DB, userID, orderID string, typ model.NotificationType, title, message string) (*model.Notification, error) {
	if userID == "" {
		return nil, nil
	}

	note := &model.Notification{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		CreatedAt: n.now().UTC(),
	}
	if err := n.repo.Create(ctx, tx, note); err != nil {
		return nil, err
	}
	return note, nil
}

func (n *notifier) publish(ctx context.Context, notes ...*model.Notification) {
	if n.publisher == nil {
		return
	}
	l := logging.FromContext(ctx)
	for _, note := range notes {
		if note == nil {
			continue
		}
		err := n.publisher.Publish(ctx, note.UserID, notificationEvent{
			ID:        note.ID,
			UserID:    note.UserID,
			OrderID:   note.OrderID,
			Type:      note.Type,
			Title:     note.Title,
			Message:   note.Message,
			CreatedAt: note.CreatedAt,
		})
		if err != nil {
			l.Warn("publish notification failed", "notification_id", note.ID, "type", note.Type, "error", err)
		}
	}
}
