package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/domain/repository"
	"TriggerDesk/pkg/logger"
	"TriggerDesk/pkg/util"
)

const (
	DefaultStrategyID    = "intraday_5b"
	DefaultMinGoInterval = 20 * time.Second
	maxGoCollisions      = 99
)

// Writer owns all writes below the data directory. Writes are serialized.
type Writer struct {
	layout        Layout
	now           func() time.Time
	minGoInterval time.Duration
	log           *logger.Logger
	metrics       repository.Metrics
	mu            sync.Mutex
}

type Option func(*Writer)

func WithClock(now func() time.Time) Option { return func(w *Writer) { w.now = now } }

func WithMinGoInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.minGoInterval = d
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(w *Writer) { w.log = l } }

func WithMetrics(m repository.Metrics) Option { return func(w *Writer) { w.metrics = m } }

func NewWriter(root string, opts ...Option) *Writer {
	w := &Writer{
		layout:        Layout{Root: root},
		now:           time.Now,
		minGoInterval: DefaultMinGoInterval,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Layout() Layout { return w.layout }

func (w *Writer) record(kind string, ok bool) {
	if w.metrics != nil {
		w.metrics.RecordSnapshot(kind, ok)
	}
}

// WriteCadence stores snap as the cadence snapshot of the current Phoenix
// minute and appends the events derived against the previous snapshot of
// the day. An existing snapshot for the minute is never replaced.
func (w *Writer) WriteCadence(snap models.ReplaySnapshot) (res models.CadenceResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.CadenceResult{OK: false, Error: fmt.Sprintf("panic: %v", r)}
		}
		w.record(models.SnapshotCadence, res.OK)
	}()
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	date, hhmm := DateOf(now), HHMM(now)
	path := w.layout.CadencePath(date, hhmm)
	rel := filepath.Join(date, filepath.Base(path))
	if _, err := os.Stat(path); err == nil {
		return models.CadenceResult{OK: true, Skipped: true, Reason: models.SkipSnapshotExists, SnapshotFile: rel}
	}

	if snap.TsUTC == "" {
		snap.TsUTC = now.UTC().Format(time.RFC3339Nano)
	}
	snap.Meta = models.SnapshotMeta{
		Schema:   models.SnapshotSchema,
		DateYmd:  date,
		TimeHHMM: hhmm,
		DataDir:  w.layout.Root,
		Kind:     models.SnapshotCadence,
		File:     filepath.Base(path),
	}
	prev, err := w.previousCadence(date, hhmm)
	if err != nil {
		w.log.Warn("replay: previous snapshot unreadable", logger.String("date", date), logger.Error(err))
	}
	if err := writeJSON(path, snap, false); err != nil {
		if errors.Is(err, models.ErrSnapshotExists) {
			return models.CadenceResult{OK: true, Skipped: true, Reason: models.SkipSnapshotExists, SnapshotFile: rel}
		}
		return models.CadenceResult{OK: false, Error: err.Error()}
	}

	res = models.CadenceResult{OK: true, SnapshotFile: rel, Events: []string{}}
	events := Diff(prev, &snap, filepath.Base(path))
	if err := w.appendEvents(date, events); err != nil {
		w.log.Error("replay: append events failed", logger.String("date", date), logger.Error(err))
		res.Error = err.Error()
		return res
	}
	for _, ev := range events {
		res.Events = append(res.Events, string(ev.Type))
	}
	return res
}

// previousCadence loads the latest cadence snapshot of date before hhmm.
func (w *Writer) previousCadence(date, hhmm string) (*models.ReplaySnapshot, error) {
	entries, err := os.ReadDir(w.layout.DayDir(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	best := ""
	for _, e := range entries {
		name := e.Name()
		if cadenceRe.MatchString(name) && name < hhmm+".json" && name > best {
			best = name
		}
	}
	if best == "" {
		return nil, nil
	}
	var snap models.ReplaySnapshot
	if _, err := readJSON(filepath.Join(w.layout.DayDir(date), best), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RecordGo stores an event-driven GO snapshot, appends one GO_SIGNAL event
// and updates the per-strategy ledger. A key already recorded for the day is
// skipped, as is any GO inside the per-strategy minimum interval.
func (w *Writer) RecordGo(p models.GoPayload, snap models.ReplaySnapshot) (res models.RecordGoResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.RecordGoResult{OK: false, Error: fmt.Sprintf("panic: %v", r)}
		}
		w.record(models.SnapshotGo, res.OK && !res.Skipped)
	}()
	if p.StrategyID == "" {
		p.StrategyID = DefaultStrategyID
	}
	if p.Symbol == "" || p.Direction == "" {
		return models.RecordGoResult{OK: false, Error: models.ErrInvalidInput.Error()}
	}
	at, ok := util.ParseTime(p.AtUTC)
	if !ok {
		return models.RecordGoResult{OK: false, Error: fmt.Sprintf("%v: atUtc %q", models.ErrInvalidInput, p.AtUTC)}
	}
	key := p.Key()
	date := DateOf(at)

	w.mu.Lock()
	defer w.mu.Unlock()

	ledger, err := w.loadLedger(date)
	if err != nil {
		return models.RecordGoResult{OK: false, GoKey: key, Error: err.Error()}
	}
	entry := ledger.Strategies[p.StrategyID]
	if entry.LastGoKey == key || w.eventsHaveKey(date, key) {
		return models.RecordGoResult{OK: true, Skipped: true, Reason: models.SkipDuplicateGoKey, GoKey: key}
	}
	now := w.now()
	if entry.LastSentMs > 0 && now.UnixMilli()-entry.LastSentMs < w.minGoInterval.Milliseconds() {
		return models.RecordGoResult{OK: true, Skipped: true, Reason: models.SkipRateLimited, GoKey: key}
	}

	snap.OK = true
	snap.Symbol = p.Symbol
	snap.TsUTC = at.UTC().Format(time.RFC3339Nano)
	snap.Go = &p
	path, err := w.writeGoSnapshot(date, at, key, snap)
	if err != nil {
		return models.RecordGoResult{OK: false, GoKey: key, Error: err.Error()}
	}
	file := filepath.Base(path)
	ev := models.Event{
		TsUTC:        now.UTC().Format(time.RFC3339Nano),
		Type:         models.EventGoSignal,
		Symbol:       p.Symbol,
		To:           p.Direction,
		ReasonCodes:  append([]string{}, p.ReasonCodes...),
		Refs:         models.EventRefs{ZoneID: p.ZoneID, SnapshotFile: file, GoKey: key},
		EngineScores: p.EngineScores,
	}
	res = models.RecordGoResult{
		OK:           true,
		SnapshotFile: filepath.Join(date, file),
		EventsFile:   filepath.Join(date, eventsFile),
		GoKey:        key,
	}
	if err := w.appendEvents(date, []models.Event{ev}); err != nil {
		w.log.Error("replay: append GO event failed", logger.String("key", key), logger.Error(err))
		res.OK = false
		res.Error = err.Error()
		return res
	}
	ledger.Strategies[p.StrategyID] = models.GoLedgerEntry{
		LastGoKey:    key,
		LastSentMs:   now.UnixMilli(),
		LastGoAtUTC:  p.AtUTC,
		SnapshotFile: file,
	}
	if err := w.saveLedger(date, ledger); err != nil {
		w.log.Error("replay: ledger save failed", logger.String("key", key), logger.Error(err))
		res.OK = false
		res.Error = err.Error()
	}
	return res
}

// writeGoSnapshot picks HHMMSS_GO.json, or HHMMSS_<n>_GO.json on collision.
func (w *Writer) writeGoSnapshot(date string, at time.Time, key string, snap models.ReplaySnapshot) (string, error) {
	base := HHMMSS(at)
	for n := 1; n <= maxGoCollisions; n++ {
		name := base
		if n > 1 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		path := w.layout.GoPath(date, name)
		snap.Meta = models.SnapshotMeta{
			Schema:   models.SnapshotSchema,
			DateYmd:  date,
			TimeHHMM: HHMM(at),
			DataDir:  w.layout.Root,
			Kind:     models.SnapshotGo,
			File:     filepath.Base(path),
			GoKey:    key,
		}
		err := writeJSON(path, snap, false)
		if errors.Is(err, models.ErrSnapshotExists) {
			continue
		}
		return path, err
	}
	return "", fmt.Errorf("go snapshot %s: %w", base, models.ErrSnapshotExists)
}

func (w *Writer) eventsHaveKey(date, key string) bool {
	log, err := w.loadEvents(date)
	if err != nil {
		return false
	}
	for _, ev := range log.Events {
		if ev.Type == models.EventGoSignal && ev.Refs.GoKey == key {
			return true
		}
	}
	return false
}

// Reader serves the read side of the replay tree.
type Reader struct {
	layout Layout
}

func NewReader(root string) *Reader { return &Reader{layout: Layout{Root: root}} }

// Dates lists the partition dates in ascending order.
func (r *Reader) Dates() ([]string, error) {
	entries, err := os.ReadDir(r.layout.Root)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.layout.Root, err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() && ValidDate(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Times lists the cadence snapshot times (HHMM) of date in ascending order.
func (r *Reader) Times(date string) ([]string, error) {
	if !ValidDate(date) {
		return nil, models.ErrInvalidInput
	}
	entries, err := os.ReadDir(r.layout.DayDir(date))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", date, err)
	}
	out := []string{}
	for _, e := range entries {
		if cadenceRe.MatchString(e.Name()) {
			out = append(out, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Snapshot returns the raw cadence snapshot or models.ErrNotFound.
func (r *Reader) Snapshot(date, hhmm string) ([]byte, error) {
	if !ValidDate(date) || !ValidHHMM(hhmm) {
		return nil, models.ErrInvalidInput
	}
	data, err := os.ReadFile(r.layout.CadencePath(date, hhmm))
	if errors.Is(err, os.ErrNotExist) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Events returns the day log; a missing log is empty.
func (r *Reader) Events(date string) (models.EventLog, error) {
	if !ValidDate(date) {
		return models.EventLog{}, models.ErrInvalidInput
	}
	var log models.EventLog
	if _, err := readJSON(r.layout.EventsPath(date), &log); err != nil {
		return models.EventLog{Events: []models.Event{}}, err
	}
	if log.Events == nil {
		log.Events = []models.Event{}
	}
	return log, nil
}
