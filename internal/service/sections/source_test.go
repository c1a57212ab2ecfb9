package sections

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/service/upstream"
)

func TestFetchSection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/decision":
			_, _ = w.Write([]byte(`{"permission":"ALLOW","symbol":"` + r.URL.Query().Get("symbol") + `"}`))
		case "/fib":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	src := NewSource(upstream.NewBase("context", srv.URL))
	raw, err := src.Fetch(context.Background(), Decision, "spy")
	if err != nil || string(raw) != `{"permission":"ALLOW","symbol":"SPY"}` {
		t.Fatalf("decision: %s %v", raw, err)
	}
	if _, err := src.Fetch(context.Background(), Fib, "SPY"); !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Fatalf("fib: expected unavailable, got %v", err)
	}
	if _, err := src.Fetch(context.Background(), "wave", "SPY"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("unknown section: expected invalid input, got %v", err)
	}
}
