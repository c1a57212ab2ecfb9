package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"TriggerDesk/internal/domain/models"
	xhttp "TriggerDesk/pkg/http"
	xlogger "TriggerDesk/pkg/logger"
	"TriggerDesk/pkg/util"
)

// LiveView is the read side of one live trigger engine.
type LiveView interface {
	Symbol() string
	Status() models.LiveStatus
	Subscribe() (string, <-chan struct{}, func())
	LastTickAge() time.Duration
	Subscribers() int
}

// LiveHandler serves the trigger engine status and its SSE stream.
type LiveHandler struct {
	logger    *xlogger.Logger
	engines   map[string]LiveView
	primary   string
	minGap    time.Duration
	heartbeat time.Duration
}

// NewLiveHandler takes the engines in symbol order; the first one answers
// requests without a symbol.
func NewLiveHandler(logger *xlogger.Logger, minGap, heartbeat time.Duration, engines ...LiveView) *LiveHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if minGap <= 0 {
		minGap = time.Second
	}
	if heartbeat < minGap {
		heartbeat = 2 * minGap
	}
	h := &LiveHandler{
		logger:    logger.With("live-api"),
		engines:   make(map[string]LiveView, len(engines)),
		minGap:    minGap,
		heartbeat: heartbeat,
	}
	for _, e := range engines {
		if h.primary == "" {
			h.primary = e.Symbol()
		}
		h.engines[e.Symbol()] = e
	}
	return h
}

func (h *LiveHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/live/status", h.Status)
	e.GET("/live/events", h.Events)
}

func (h *LiveHandler) engine(c echo.Context) (LiveView, error) {
	symbol := util.UpperSymbol(c.QueryParam("symbol"))
	if symbol == "" {
		symbol = h.primary
	}
	eng, ok := h.engines[symbol]
	if !ok {
		return nil, xhttp.NotFoundErrorf("no live engine for %q", symbol)
	}
	return eng, nil
}

// Status handles GET /live/status.
func (h *LiveHandler) Status(c echo.Context) error {
	eng, err := h.engine(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.JSONResponse(c, eng.Status())
}

// Events handles GET /live/events. Frames go out when the engine publishes,
// at most once per minGap, and at least once per heartbeat. Wake-ups that
// arrive inside the gap collapse into one frame carrying the latest state.
func (h *LiveHandler) Events(c echo.Context) error {
	eng, err := h.engine(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	ctx := c.Request().Context()
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	// the server write timeout must not cut the stream
	_ = http.NewResponseController(res.Writer).SetWriteDeadline(time.Time{})
	res.WriteHeader(http.StatusOK)

	id, wake, cancel := eng.Subscribe()
	defer cancel()
	h.logger.Debug("sse subscriber joined", xlogger.String("id", id), xlogger.String("symbol", eng.Symbol()))

	var last time.Time
	send := func() error {
		frame, err := json.Marshal(models.LiveEvent{Type: "status", State: eng.Status()})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res, "data: %s\n\n", frame); err != nil {
			return err
		}
		res.Flush()
		last = time.Now()
		return nil
	}
	if err := send(); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	var pending <-chan time.Time
	for {
		var err error
		select {
		case <-ctx.Done():
			h.logger.Debug("sse subscriber left", xlogger.String("id", id))
			return nil
		case <-wake:
			if pending != nil {
				continue
			}
			if gap := time.Since(last); gap < h.minGap {
				pending = time.After(h.minGap - gap)
				continue
			}
			err = send()
		case <-pending:
			pending = nil
			err = send()
		case <-heartbeat.C:
			if time.Since(last) >= h.minGap {
				err = send()
			}
		}
		if err != nil {
			h.logger.Debug("sse write failed", xlogger.String("id", id), xlogger.Error(err))
			return nil
		}
	}
}
