package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/patrickngure45/tradesynapse-core/internal/domain"
	"github.com/patrickngure45/tradesynapse-core/internal/usecase"
)

// notificationTopic carries user-facing notifications; a downstream service
// fans them out to push/email channels.
const notificationTopic = "user.notification"

// KafkaNotifier implements usecase.Notifier by publishing notifications
// through the shared kafka publisher. Keyed by user id so one user's
// notifications stay ordered.
type KafkaNotifier struct {
	publisher usecase.Publisher
}

// NewKafkaNotifier creates a notifier on top of an existing publisher.
func NewKafkaNotifier(publisher usecase.Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

// Notify publishes one notification.
func (n *KafkaNotifier) Notify(ctx context.Context, notification domain.Notification) error {
	payload, err := json.Marshal(map[string]any{
		"user_id":  notification.UserID,
		"type":     notification.Type,
		"title":    notification.Title,
		"body":     notification.Body,
		"metadata": notification.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	return n.publisher.Publish(ctx, notificationTopic, notification.UserID, payload)
}
