package usecase

import (
	"context"
	"strings"
	"sync"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/pkg/logger"
)

// EngineSet routes ticks to the live engine of their symbol and runs all engines together.
type EngineSet struct {
	order []*LiveEngine
	by    map[string]*LiveEngine
	log   *logger.Logger
}

func NewEngineSet(log *logger.Logger, engines ...*LiveEngine) *EngineSet {
	if log == nil {
		log = logger.Nop()
	}
	s := &EngineSet{by: make(map[string]*LiveEngine, len(engines)), log: log.With("engines")}
	for _, e := range engines {
		if e == nil {
			continue
		}
		sym := strings.ToUpper(e.Symbol())
		if _, dup := s.by[sym]; dup {
			continue
		}
		s.by[sym] = e
		s.order = append(s.order, e)
	}
	return s
}

// Engines returns the engines in configuration order.
func (s *EngineSet) Engines() []*LiveEngine { return s.order }

func (s *EngineSet) Get(symbol string) (*LiveEngine, bool) {
	e, ok := s.by[strings.ToUpper(symbol)]
	return e, ok
}

// Process hands t to its engine. Ticks for unknown symbols are dropped.
func (s *EngineSet) Process(ctx context.Context, t models.Tick) error {
	e, ok := s.by[strings.ToUpper(t.Symbol)]
	if !ok {
		return nil
	}
	t.Symbol = e.Symbol()
	return e.Process(ctx, t)
}

// Run blocks until every engine loop has returned.
func (s *EngineSet) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.order {
		wg.Add(1)
		go func(e *LiveEngine) {
			defer wg.Done()
			if err := e.Run(ctx); err != nil {
				s.log.Error("live engine stopped", logger.String("symbol", e.Symbol()), logger.Error(err))
			}
		}(e)
	}
	wg.Wait()
}
