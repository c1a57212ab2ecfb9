package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/service/upstream"
	"TriggerDesk/internal/services/features"
	"TriggerDesk/pkg/util"
)

// REST fetches aggregates from a Polygon-style /v2/aggs endpoint.
type REST struct {
	base *upstream.Base
	now  func() time.Time
}

// NewREST builds the aggregates client. The API key travels as a bearer header.
func NewREST(baseURL, apiKey string, now func() time.Time, opts ...upstream.Option) *REST {
	if now == nil {
		now = time.Now
	}
	opts = append([]upstream.Option{upstream.WithHeader("Authorization", "Bearer "+apiKey)}, opts...)
	return &REST{base: upstream.NewBase("polygon.aggs", baseURL, opts...), now: now}
}

type aggBar struct {
	T    *float64 `json:"t"`
	Time *float64 `json:"time"`
	O    float64  `json:"o"`
	H    float64  `json:"h"`
	L    float64  `json:"l"`
	C    float64  `json:"c"`
	V    float64  `json:"v"`
}

type aggResponse struct {
	Status  string   `json:"status"`
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Results []aggBar `json:"results"`
}

// span maps a timeframe to the multiplier/timespan pair of the aggregates API.
func span(tf models.Timeframe) (int, string, bool) {
	switch tf {
	case models.TF1s:
		return 1, "second", true
	case models.TF1m:
		return 1, "minute", true
	case models.TF5m:
		return 5, "minute", true
	case models.TF15m:
		return 15, "minute", true
	case models.TF30m:
		return 30, "minute", true
	case models.TF1h:
		return 1, "hour", true
	case models.TF4h:
		return 4, "hour", true
	case models.TF1d:
		return 1, "day", true
	}
	return 0, "", false
}

// FetchBars implements repository.BarProvider.
func (r *REST) FetchBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]models.Bar, error) {
	mult, unit, ok := span(tf)
	if !ok {
		return nil, fmt.Errorf("polygon: timeframe %q: %w", tf, models.ErrInvalidInput)
	}
	from, to = util.AlignRange(from, to, time.Duration(tf.Seconds())*time.Second)
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
		url.PathEscape(strings.ToUpper(symbol)), mult, unit, from.UnixMilli(), to.UnixMilli())
	q := url.Values{
		"adjusted": {"true"},
		"sort":     {"asc"},
		"limit":    {strconv.Itoa(50000)},
	}
	body, err := r.base.GetRaw(ctx, path, q)
	if err != nil {
		return nil, err
	}
	return decodeAggs(body, r.now())
}

func decodeAggs(body []byte, now time.Time) ([]models.Bar, error) {
	var resp aggResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polygon: decode aggs: %w", err)
	}
	switch strings.ToUpper(resp.Status) {
	case "ERROR", "NOT_AUTHORIZED", "NOT_FOUND":
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		return nil, fmt.Errorf("polygon: %s %s: %w", resp.Status, msg, models.ErrUpstreamUnavailable)
	}
	bars := make([]models.Bar, 0, len(resp.Results))
	for _, a := range resp.Results {
		ts := a.T
		if ts == nil {
			ts = a.Time
		}
		if ts == nil {
			continue
		}
		bars = append(bars, models.Bar{
			Time:   features.NormalizeEpoch(*ts),
			Open:   a.O,
			High:   a.H,
			Low:    a.L,
			Close:  a.C,
			Volume: a.V,
		})
	}
	return features.SanitizeBars(bars, now), nil
}
