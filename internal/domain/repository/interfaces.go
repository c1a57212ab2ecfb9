package repository

import (
	"context"
	"encoding/json"
	"time"

	"TriggerDesk/internal/domain/models"
)

// BarProvider is the upstream aggregates source.
type BarProvider interface {
	FetchBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.Bar, error)
}

// BarArchive persists closed bars and serves them back when the provider is down.
type BarArchive interface {
	StoreBars(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) error
	LatestBars(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error)
}

// GoArchive keeps an append-only record of recorded GO signals.
type GoArchive interface {
	StoreGo(ctx context.Context, p models.GoPayload, snapshotFile string) error
}

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.StreamMessage, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ZoneFeed is the canonicalized output of the zone/shelf sources.
type ZoneFeed struct {
	Institutional []models.Zone
	Shelves       []models.Zone
	PriceAnchor   *float64
}

type ZoneSource interface {
	FetchZones(ctx context.Context, symbol string) (ZoneFeed, error)
}

type RiskSource interface {
	FetchRisk(ctx context.Context) (models.RiskState, error)
}

// ContextSource returns raw JSON sections (smz-hierarchy, fib, decision) for snapshots.
type ContextSource interface {
	Fetch(ctx context.Context, section, symbol string) (json.RawMessage, error)
}

type Notifier interface {
	Send(ctx context.Context, n *models.Notification) error
	Name() string
	IsEnabled() bool
}

// EventPublisher fans GO and replay events out to downstream consumers.
type EventPublisher interface {
	PublishGo(ctx context.Context, symbol string, g models.GoSignal) error
	PublishEvent(ctx context.Context, e models.Event) error
	Close() error
}

type Metrics interface {
	RecordTick(symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordStage(symbol string, stage string)
	RecordGo(symbol string, direction string)
	RecordSnapshot(kind string, ok bool)
	RecordAlert(outcome string)
}
