package polygon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TriggerDesk/internal/domain/models"
)

func TestFetchBarsCanonicalizesResults(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"status":"OK","results":[
			{"t":1717421460000,"o":2,"h":3,"l":1,"c":2.5,"v":10},
			{"time":1717421400,"o":1,"h":2,"l":0.5,"c":1.5,"v":5},
			{"t":1717421460000,"o":2,"h":3.5,"l":1,"c":3,"v":12},
			{"o":1,"h":1,"l":1,"c":1,"v":1}
		]}`))
	}))
	defer srv.Close()

	now := time.Unix(1717430000, 0)
	rest := NewREST(srv.URL, "k3y", func() time.Time { return now })
	bars, err := rest.FetchBars(context.Background(), "spy", models.TF1m, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/v2/aggs/ticker/SPY/range/1/minute/") {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer k3y" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 deduplicated bars, got %d", len(bars))
	}
	if bars[0].Time != 1717421400 || bars[1].Time != 1717421460 {
		t.Fatalf("bars not ascending seconds: %+v", bars)
	}
	if bars[1].Close != 3 {
		t.Fatalf("later duplicate should win, got close %v", bars[1].Close)
	}
}

func TestFetchBarsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ERROR","error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewREST(srv.URL, "", nil).FetchBars(context.Background(), "SPY", models.TF5m, time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, models.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	_, err = NewREST(srv.URL, "", nil).FetchBars(context.Background(), "SPY", models.Timeframe("7m"), time.Now(), time.Now())
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
