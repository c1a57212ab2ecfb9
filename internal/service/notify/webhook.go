package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"TriggerDesk/internal/domain/models"
	xhttp "TriggerDesk/pkg/http"
)

// Webhook posts alerts as a chat-style embed plus the raw notification.
type Webhook struct {
	url     string
	enabled bool
	client  *xhttp.Client
}

func NewWebhook(url string, enabled bool, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:     url,
		enabled: enabled && url != "",
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) IsEnabled() bool { return w.enabled }

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp"`
	Fields      []field `json:"fields,omitempty"`
}

type payload struct {
	Content string               `json:"content"`
	Embeds  []embed              `json:"embeds"`
	Data    *models.Notification `json:"data"`
}

func (w *Webhook) Send(ctx context.Context, n *models.Notification) error {
	if !w.enabled {
		return nil
	}
	e := embed{
		Title:       n.Title,
		Description: n.Message,
		Color:       0x00FF00,
		Timestamp:   n.Timestamp.UTC().Format(time.RFC3339),
	}
	if n.Symbol != "" {
		e.Fields = append(e.Fields, field{Name: "Symbol", Value: n.Symbol, Inline: true})
	}
	if n.Price > 0 {
		e.Fields = append(e.Fields, field{Name: "Price", Value: fmt.Sprintf("%.2f", n.Price), Inline: true})
	}
	err := w.client.Do(ctx, xhttp.Request{
		Method: http.MethodPost,
		URL:    w.url,
		Header: map[string]string{"Idempotency-Key": n.Key},
		Body:   payload{Content: n.Title, Embeds: []embed{e}, Data: n},
	}, nil)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	return nil
}
