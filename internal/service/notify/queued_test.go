package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"TriggerDesk/internal/domain/models"
)

type memQueue struct {
	types    []string
	payloads []json.RawMessage
	err      error
}

func (m *memQueue) Enqueue(_ context.Context, msgType string, payload any) error {
	if m.err != nil {
		return m.err
	}
	b, _ := json.Marshal(payload)
	m.types = append(m.types, msgType)
	m.payloads = append(m.payloads, b)
	return nil
}

type captureNotifier struct {
	sent []*models.Notification
}

func (c *captureNotifier) Send(_ context.Context, n *models.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}
func (c *captureNotifier) Name() string    { return "capture" }
func (c *captureNotifier) IsEnabled() bool { return true }

func TestQueuedNotifierRoundTrip(t *testing.T) {
	q := &memQueue{}
	target := &captureNotifier{}
	n := NewQueued(q, target)
	if n.Name() != "queued:capture" || !n.IsEnabled() {
		t.Fatalf("unexpected notifier identity %s", n.Name())
	}
	ctx := context.Background()
	if err := n.Send(ctx, &models.Notification{Title: "GO SPY LONG", Symbol: "SPY", Key: "k1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(q.types) != 1 || q.types[0] != DeliveryType {
		t.Fatalf("enqueued = %v", q.types)
	}
	if len(target.sent) != 0 {
		t.Fatal("nothing should be delivered before the job runs")
	}

	job := NewDeliveryJob(target)
	if job.Type() != DeliveryType {
		t.Fatalf("job type = %s", job.Type())
	}
	if err := job.Handle(ctx, q.payloads[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(target.sent) != 1 || target.sent[0].Key != "k1" {
		t.Fatalf("delivered = %+v", target.sent)
	}
	if err := job.Handle(ctx, json.RawMessage(`{oops`)); err == nil {
		t.Fatal("malformed payload should fail so the queue retries it")
	}
}

func TestQueuedNotifierEnqueueError(t *testing.T) {
	n := NewQueued(&memQueue{err: errors.New("queue not running")}, &captureNotifier{})
	if err := n.Send(context.Background(), &models.Notification{}); err == nil {
		t.Fatal("enqueue failure must surface to the emitter")
	}
}
