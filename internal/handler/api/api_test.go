package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/usecase"
	xhttp "TriggerDesk/pkg/http"
)

type stubZones struct {
	sel   models.ActiveZoneSelection
	err   error
	price *float64
}

func (s *stubZones) Active(_ context.Context, _, _ string, price *float64) (models.ActiveZoneSelection, error) {
	s.price = price
	return s.sel, s.err
}

type stubReactions struct{ got usecase.ReactionQuery }

func (s *stubReactions) Evaluate(_ context.Context, q usecase.ReactionQuery) models.ReactionResult {
	s.got = q
	if q.Symbol == "" {
		return models.ReactionResult{OK: false, Stage: models.StageIdle, ReasonCodes: []string{models.ReasonMissingSymbolOrTF}}
	}
	return models.ReactionResult{OK: true, Symbol: q.Symbol, Stage: models.StageArmed, ReasonCodes: []string{}}
}

type stubVolumes struct{}

func (stubVolumes) Evaluate(_ context.Context, q usecase.VolumeQuery) models.VolumeResult {
	return models.VolumeResult{OK: true, Symbol: q.Symbol, Zone: models.ZoneBounds{Lo: q.Lo, Hi: q.Hi}, ReasonCodes: []string{}}
}

func serve(h xhttp.Handler, method, target, body string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) xhttp.FailureBody {
	t.Helper()
	var body xhttp.FailureBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failure body %q: %v", rec.Body.String(), err)
	}
	if body.OK {
		t.Fatalf("failure body must carry ok:false: %s", rec.Body.String())
	}
	return body
}

func TestActiveZoneStatusMapping(t *testing.T) {
	zones := &stubZones{sel: models.ActiveZoneSelection{OK: true, Active: &models.Zone{ID: "z1", Lo: 99, Hi: 101}}}
	h := NewEnginesHandler(nil, zones, &stubReactions{}, stubVolumes{}, "intraday_5b")

	rec := serve(h, http.MethodGet, "/zones/active?symbol=SPY&tf=1h&currentPrice=100.5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if zones.price == nil || *zones.price != 100.5 {
		t.Fatalf("currentPrice not forwarded: %v", zones.price)
	}

	rec = serve(h, http.MethodGet, "/zones/active?symbol=SPY", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing tf should be 400, got %d", rec.Code)
	}
	if body := decodeFailure(t, rec); body.ReasonCodes[0] != "INVALID_INPUT" {
		t.Fatalf("reason codes = %v", body.ReasonCodes)
	}

	rec = serve(h, http.MethodGet, "/zones/active?symbol=SPY&tf=1h&currentPrice=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed price should be 400, got %d", rec.Code)
	}

	zones.err = models.ErrUpstreamUnavailable
	rec = serve(h, http.MethodGet, "/zones/active?symbol=SPY&tf=1h", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("upstream failure should be 502, got %d", rec.Code)
	}
	if body := decodeFailure(t, rec); body.ReasonCodes[0] != "UPSTREAM_ERROR" {
		t.Fatalf("reason codes = %v", body.ReasonCodes)
	}
}

func TestReactionBusinessFailuresAre200(t *testing.T) {
	re := &stubReactions{}
	h := NewEnginesHandler(nil, &stubZones{}, re, stubVolumes{}, "intraday_scalp")

	rec := serve(h, http.MethodGet, "/reaction?tf=1m", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("missing symbol is a business failure, got %d", rec.Code)
	}
	var res models.ReactionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.OK || !res.HasReason(models.ReasonMissingSymbolOrTF) {
		t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
	}

	rec = serve(h, http.MethodGet, "/reaction?symbol=spy&tf=1m&lo=682&hi=680", "")
	if rec.Code != http.StatusOK || re.got.Lo == nil || *re.got.Lo != 680 {
		t.Fatalf("explicit zone not parsed: %d %+v", rec.Code, re.got)
	}
	if re.got.StrategyID != "intraday_scalp" {
		t.Fatalf("default strategy not applied: %s", re.got.StrategyID)
	}

	rec = serve(h, http.MethodGet, "/reaction?symbol=SPY&tf=1m&lo=680", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("lo without hi should be 400, got %d", rec.Code)
	}
	rec = serve(h, http.MethodGet, "/reaction?symbol=SPY&tf=1m&mode=turbo", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown mode should be 400, got %d", rec.Code)
	}
}

func TestVolumeEchoesZone(t *testing.T) {
	h := NewEnginesHandler(nil, &stubZones{}, &stubReactions{}, stubVolumes{}, "")
	rec := serve(h, http.MethodGet, "/volume?symbol=SPY&tf=1m&zoneLo=680&zoneHi=682&mode=swing", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res models.VolumeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Zone.Lo != 680 || res.Zone.Hi != 682 {
		t.Fatalf("zone echo = %+v", res.Zone)
	}
	rec = serve(h, http.MethodGet, "/volume?symbol=SPY&zoneLo=682&zoneHi=680", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted zone should be 400, got %d", rec.Code)
	}
}

type stubReplay struct {
	mu      sync.Mutex
	records []models.GoPayload
	symbol  string
}

func (s *stubReplay) Dates() ([]string, error) { return []string{"2025-06-02", "2025-06-03"}, nil }

func (s *stubReplay) Times(string) ([]string, error) { return []string{"0930", "0931"}, nil }

func (s *stubReplay) Snapshot(date, hhmm string) ([]byte, error) {
	if hhmm == "0930" {
		return []byte(`{"ok":true,"symbol":"SPY"}`), nil
	}
	return nil, models.ErrNotFound
}

func (s *stubReplay) Events(string) (models.EventLog, error) {
	return models.EventLog{Events: []models.Event{}}, nil
}

func (s *stubReplay) RecordGo(_ context.Context, p models.GoPayload) models.RecordGoResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Key() == p.Key() {
			return models.RecordGoResult{OK: true, Skipped: true, Reason: models.SkipDuplicateGoKey, GoKey: p.Key()}
		}
	}
	s.records = append(s.records, p)
	return models.RecordGoResult{OK: true, GoKey: p.Key(), SnapshotFile: "2025-06-02/093100_GO.json", EventsFile: "2025-06-02/events.json"}
}

func (s *stubReplay) Cadence(_ context.Context, symbol string) models.CadenceResult {
	s.symbol = symbol
	return models.CadenceResult{OK: true, SnapshotFile: "2025-06-02/0930.json"}
}

func TestReplayEndpoints(t *testing.T) {
	store := &stubReplay{}
	h := NewReplayHandler(nil, store)

	rec := serve(h, http.MethodGet, "/replay/dates", "")
	var dates []string
	if err := json.Unmarshal(rec.Body.Bytes(), &dates); err != nil || len(dates) != 2 {
		t.Fatalf("dates = %s (%v)", rec.Body.String(), err)
	}

	rec = serve(h, http.MethodGet, "/replay/snapshot?date=2025-06-02&time=0930", "")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"ok":true,"symbol":"SPY"}` {
		t.Fatalf("snapshot should be served verbatim: %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(h, http.MethodGet, "/replay/snapshot?date=2025-06-02&time=1200", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing snapshot should be 404, got %d", rec.Code)
	}
	rec = serve(h, http.MethodGet, "/replay/times?date=06-02-2025", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date should be 400, got %d", rec.Code)
	}

	body := `{"symbol":"SPY","direction":"LONG","atUtc":"2025-06-02T16:31:00Z","price":682.08}`
	rec = serve(h, http.MethodPost, "/replay/record-go", body)
	var first models.RecordGoResult
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil || !first.OK || first.Skipped {
		t.Fatalf("record = %s (%v)", rec.Body.String(), err)
	}
	if first.GoKey != "SPY|intraday_5b|LONG|2025-06-02T16:31:00Z" {
		t.Fatalf("strategy default not applied: %s", first.GoKey)
	}
	rec = serve(h, http.MethodPost, "/replay/record-go", body)
	var dup models.RecordGoResult
	if err := json.Unmarshal(rec.Body.Bytes(), &dup); err != nil || !dup.Skipped || dup.Reason != models.SkipDuplicateGoKey {
		t.Fatalf("duplicate = %s (%v)", rec.Body.String(), err)
	}
	rec = serve(h, http.MethodPost, "/replay/record-go", `{"symbol":"SPY","direction":"UP","atUtc":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad direction should be 400, got %d", rec.Code)
	}

	rec = serve(h, http.MethodPost, "/replay/cadence?symbol=QQQ", "")
	if rec.Code != http.StatusOK || store.symbol != "QQQ" {
		t.Fatalf("cadence: %d symbol=%s", rec.Code, store.symbol)
	}
}

type stubLive struct {
	mu     sync.Mutex
	status models.LiveStatus
	wake   chan struct{}
}

func newStubLive() *stubLive {
	return &stubLive{
		status: models.LiveStatus{OK: true, Symbol: "SPY", Connected: true, State: models.TriggerState{Stage: models.TriggerArmed, Go: models.EmptyGo()}},
		wake:   make(chan struct{}, 1),
	}
}

func (s *stubLive) Symbol() string { return "SPY" }

func (s *stubLive) Status() models.LiveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubLive) Subscribe() (string, <-chan struct{}, func()) { return "sub-1", s.wake, func() {} }

func (s *stubLive) LastTickAge() time.Duration { return 1500 * time.Millisecond }

func (s *stubLive) Subscribers() int { return 2 }

func TestLiveStatusAndUnknownSymbol(t *testing.T) {
	h := NewLiveHandler(nil, time.Second, 2*time.Second, newStubLive())
	rec := serve(h, http.MethodGet, "/live/status", "")
	var st models.LiveStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil || st.State.Stage != models.TriggerArmed {
		t.Fatalf("status = %s (%v)", rec.Body.String(), err)
	}
	rec = serve(h, http.MethodGet, "/live/status?symbol=QQQ", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown symbol should be 404, got %d", rec.Code)
	}
}

func TestLiveEventsThrottlesBursts(t *testing.T) {
	live := newStubLive()
	h := NewLiveHandler(nil, 200*time.Millisecond, 400*time.Millisecond, live)
	e := echo.New()
	h.RegisterRoutes(e)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/live/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		// a burst right after connect collapses into one delayed frame
		for i := 0; i < 20; i++ {
			select {
			case live.wake <- struct{}{}:
			default:
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	e.ServeHTTP(rec, req)

	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}
	frames := strings.Count(rec.Body.String(), "data: ")
	// initial + burst frame + at most one heartbeat inside 500ms
	if frames < 2 || frames > 3 {
		t.Fatalf("expected 2-3 frames, got %d:\n%s", frames, rec.Body.String())
	}
	first := strings.SplitN(strings.TrimPrefix(rec.Body.String(), "data: "), "\n", 2)[0]
	var ev models.LiveEvent
	if err := json.Unmarshal([]byte(first), &ev); err != nil || ev.Type != "status" || ev.State.Symbol != "SPY" {
		t.Fatalf("first frame = %s (%v)", first, err)
	}
}

func TestHealthz(t *testing.T) {
	h := NewHealthHandler(newStubLive())
	rec := serve(h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Degraded || len(body.Engines) != 1 || body.Engines[0].LastTickAgeMs != 1500 || body.Engines[0].Subscribers != 2 {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestHealthzProbesMarkDegraded(t *testing.T) {
	h := NewHealthHandler(newStubLive()).WithProbes(
		Probe{Name: "redis", Check: func(context.Context) error { return nil }},
		Probe{Name: "clickhouse", Check: func(context.Context) error { return errors.New("connection refused") }},
	)
	rec := serve(h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("a failing dependency must not change the status, got %d", rec.Code)
	}
	var body healthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Degraded || body.Deps["redis"] != "ok" || body.Deps["clickhouse"] != "connection refused" {
		t.Fatalf("unexpected health %+v", body)
	}
}

func TestErrorResponseFallback(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := errorResponse(c, errors.New("disk full"), xhttp.InternalError); err != nil {
		t.Fatalf("errorResponse: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
