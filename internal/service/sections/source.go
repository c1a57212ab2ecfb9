// Package sections fetches the raw context sections captured into replay snapshots.
package sections

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/service/upstream"
)

// Section names.
const (
	SmzHierarchy = "smz-hierarchy"
	Fib          = "fib"
	Decision     = "decision"
)

// Source implements repository.ContextSource. Each section is GET <base>/<section>?symbol=.
type Source struct {
	base *upstream.Base
}

func NewSource(base *upstream.Base) *Source { return &Source{base: base} }

func (s *Source) Fetch(ctx context.Context, section, symbol string) (json.RawMessage, error) {
	switch section {
	case SmzHierarchy, Fib, Decision:
	default:
		return nil, fmt.Errorf("section %q: %w", section, models.ErrInvalidInput)
	}
	body, err := s.base.GetRaw(ctx, "/"+section, url.Values{"symbol": {strings.ToUpper(symbol)}})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("section %s: invalid json: %w", section, models.ErrUpstreamUnavailable)
	}
	return json.RawMessage(body), nil
}
