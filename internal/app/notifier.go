/**
 * @description
 * Best-effort notification dispatch. "Best-effort" is a named policy here, not
 * an ad hoc try/catch at call sites: Dispatch never returns an error, logs any
 * failure, and the parent state transition proceeds regardless. The same
 * policy covers the ops-console event feed published to RabbitMQ.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/volapay/remit-service/internal/domain"
	"github.com/volapay/remit-service/internal/store"
	"github.com/volapay/remit-service/pkg/rabbitmq"
)

// lifecycleExchange is the topic exchange carrying ops-console feed events.
const lifecycleExchange = "transfer_events"

// Notifier creates user-visible notification records and feeds the ops
// console.
type Notifier struct {
	repo     store.Repository
	producer rabbitmq.Publisher
}

// NewNotifier creates a notification dispatcher. The producer may be a
// fallback no-op when RabbitMQ is unavailable.
func NewNotifier(repo store.Repository, producer rabbitmq.Publisher) *Notifier {
	return &Notifier{repo: repo, producer: producer}
}

// Dispatch persists one notification. Failure is logged and swallowed.
func (n *Notifier) Dispatch(ctx context.Context, userID uuid.UUID, notifType, title, message string) {
	notification := domain.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: message,
	}
	if err := n.repo.CreateNotification(ctx, &notification); err != nil {
		log.Printf("level=warn component=notifier msg=\"notification create failed\" user_id=%s type=%s err=%v",
			userID, notifType, err)
	}
}

// PublishLifecycle pushes a state-change event onto the ops feed. Failure is
// logged and swallowed.
func (n *Notifier) PublishLifecycle(ctx context.Context, resourceType string, resourceID, userID uuid.UUID, status string) {
	if n.producer == nil {
		return
	}
	event := rabbitmq.LifecycleEvent{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		UserID:       userID,
		Status:       status,
		Timestamp:    time.Now().UTC(),
	}
	routingKey := resourceType + ".status"
	if err := n.producer.Publish(ctx, lifecycleExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=notifier msg=\"lifecycle publish failed\" resource=%s resource_id=%s err=%v",
			resourceType, resourceID, err)
	}
}
