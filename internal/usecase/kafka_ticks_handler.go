package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TriggerDesk/internal/domain/models"
	domrepo "TriggerDesk/internal/domain/repository"
	mid "TriggerDesk/internal/middleware"
	"TriggerDesk/internal/services/features"
	pkgkafka "TriggerDesk/pkg/kafka"
)

// KafkaTicksHandler consumes trade prints from Kafka and feeds the pipeline.
type KafkaTicksHandler struct {
	topic   string
	pipe    *mid.TickPipeline
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewKafkaTicksHandler(topic string, pipe *mid.TickPipeline, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, pipe: pipe, metrics: metrics, now: time.Now}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// tickMessage accepts both the stream field names {sym,t,p,s} and the
// archive shape {symbol,t,c,v}.
type tickMessage struct {
	Sym    string   `json:"sym"`
	Symbol string   `json:"symbol"`
	T      float64  `json:"t"`
	P      *float64 `json:"p"`
	C      *float64 `json:"c"`
	S      float64  `json:"s"`
	V      float64  `json:"v"`
}

func (m tickMessage) tick() models.Tick {
	t := models.Tick{Symbol: m.Sym, Size: m.S}
	if t.Symbol == "" {
		t.Symbol = m.Symbol
	}
	if m.P != nil {
		t.Price = *m.P
	} else if m.C != nil {
		t.Price = *m.C
	}
	if t.Size == 0 {
		t.Size = m.V
	}
	t.TimeMs = features.NormalizeEpochMillis(m.T)
	return t
}

func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m tickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	t := m.tick()
	if t.TimeMs > 0 {
		h.metrics.RecordLatency("ingest_e2e_seconds", h.now().Sub(time.UnixMilli(t.TimeMs)).Seconds())
	}
	if err := h.pipe.Process(ctx, t); err != nil && !errors.Is(err, mid.ErrBuffered) {
		h.metrics.RecordError("consumer_process")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
