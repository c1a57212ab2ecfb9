package risk

import (
	"context"
	"encoding/json"
	"fmt"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/service/upstream"
)

// Source implements repository.RiskSource. An unconfigured source reports the switch off.
type Source struct {
	base *upstream.Base
}

func NewSource(base *upstream.Base) *Source { return &Source{base: base} }

func (s *Source) FetchRisk(ctx context.Context) (models.RiskState, error) {
	if !s.base.Configured() {
		return models.RiskState{Allowlist: []string{}}, nil
	}
	body, err := s.base.GetRaw(ctx, "", nil)
	if err != nil {
		return models.RiskState{}, err
	}
	var st models.RiskState
	if err := json.Unmarshal(body, &st); err != nil {
		return models.RiskState{}, fmt.Errorf("risk: decode: %w", err)
	}
	if st.Allowlist == nil {
		st.Allowlist = []string{}
	}
	return st, nil
}
