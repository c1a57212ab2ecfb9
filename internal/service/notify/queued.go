package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/domain/repository"
	"TriggerDesk/pkg/queue"
)

// DeliveryType is the queue message type for alert deliveries.
const DeliveryType = "alert.deliver"

// Queued hands notifications to a retrying queue instead of sending inline.
// The emitter counts an accepted enqueue as sent; delivery retries happen out of band.
type Queued struct {
	pub    queue.Publisher
	target repository.Notifier
}

func NewQueued(pub queue.Publisher, target repository.Notifier) *Queued {
	return &Queued{pub: pub, target: target}
}

func (q *Queued) Name() string { return "queued:" + q.target.Name() }

func (q *Queued) IsEnabled() bool { return q.target.IsEnabled() }

func (q *Queued) Send(ctx context.Context, n *models.Notification) error {
	if err := q.pub.Enqueue(ctx, DeliveryType, n); err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	return nil
}

// DeliveryJob drains queued notifications into the real notifier.
type DeliveryJob struct {
	target repository.Notifier
}

func NewDeliveryJob(target repository.Notifier) *DeliveryJob {
	return &DeliveryJob{target: target}
}

func (j *DeliveryJob) Name() string { return "alert-delivery-" + j.target.Name() }

func (j *DeliveryJob) Type() string { return DeliveryType }

func (j *DeliveryJob) Handle(ctx context.Context, payload json.RawMessage) error {
	n, err := queue.Decode[models.Notification](payload)
	if err != nil {
		return err
	}
	return j.target.Send(ctx, n)
}
