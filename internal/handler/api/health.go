package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type healthEngine struct {
	Symbol        string `json:"symbol"`
	Stage         string `json:"stage"`
	Connected     bool   `json:"connected"`
	LastTickAgeMs int64  `json:"lastTickAgeMs"`
	Subscribers   int    `json:"subscribers"`
	Errors        int    `json:"errors"`
}

type healthBody struct {
	OK       bool              `json:"ok"`
	Uptime   string            `json:"uptime"`
	Engines  []healthEngine    `json:"engines"`
	Deps     map[string]string `json:"deps,omitempty"`
	Degraded bool              `json:"degraded"`
}

// Probe checks one optional dependency such as Redis or ClickHouse.
type Probe struct {
	Name  string
	Check func(context.Context) error
}

const probeTimeout = 2 * time.Second

// HealthHandler reports process liveness plus tick source state per engine.
type HealthHandler struct {
	started time.Time
	engines []LiveView
	probes  []Probe
}

func NewHealthHandler(engines ...LiveView) *HealthHandler {
	return &HealthHandler{started: time.Now(), engines: engines}
}

// WithProbes adds dependency checks; a failing one marks the body degraded.
func (h *HealthHandler) WithProbes(p ...Probe) *HealthHandler {
	h.probes = append(h.probes, p...)
	return h
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)
}

// Healthz always answers 200 while the process serves; a disconnected
// stream only marks the body degraded.
func (h *HealthHandler) Healthz(c echo.Context) error {
	body := healthBody{OK: true, Uptime: time.Since(h.started).Round(time.Second).String(), Engines: []healthEngine{}}
	for _, e := range h.engines {
		st := e.Status()
		he := healthEngine{
			Symbol:        e.Symbol(),
			Stage:         string(st.State.Stage),
			Connected:     st.Connected,
			LastTickAgeMs: e.LastTickAge().Milliseconds(),
			Subscribers:   e.Subscribers(),
			Errors:        len(st.Errors),
		}
		if !he.Connected {
			body.Degraded = true
		}
		body.Engines = append(body.Engines, he)
	}
	if len(h.probes) > 0 {
		ctx, cancel := context.WithTimeout(c.Request().Context(), probeTimeout)
		defer cancel()
		body.Deps = make(map[string]string, len(h.probes))
		for _, p := range h.probes {
			if err := p.Check(ctx); err != nil {
				body.Deps[p.Name] = err.Error()
				body.Degraded = true
				continue
			}
			body.Deps[p.Name] = "ok"
		}
	}
	return c.JSON(http.StatusOK, body)
}
