package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TriggerDesk/internal/domain/models"
)

func TestWebhookPostsEmbed(t *testing.T) {
	var got payload
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, true, time.Second)
	n := &models.Notification{Title: "GO SPY LONG", Message: "m", Symbol: "SPY", Price: 601.5, Key: "SPY|s|LONG|t", Timestamp: time.Unix(1717421460, 0)}
	if err := w.Send(context.Background(), n); err != nil {
		t.Fatalf("send: %v", err)
	}
	if key != "SPY|s|LONG|t" || len(got.Embeds) != 1 || got.Embeds[0].Title != "GO SPY LONG" || len(got.Embeds[0].Fields) != 2 {
		t.Fatalf("unexpected payload %+v key=%q", got, key)
	}
}

func TestWebhookErrorsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhook(srv.URL, true, time.Second).Send(context.Background(), &models.Notification{}); err == nil {
		t.Fatal("expected error on 502")
	}
	if NewWebhook("", true, 0).IsEnabled() {
		t.Fatal("webhook without url must be disabled")
	}
}
