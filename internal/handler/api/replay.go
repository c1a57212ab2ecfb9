package api

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/usecase"
	xhttp "TriggerDesk/pkg/http"
	xlogger "TriggerDesk/pkg/logger"
)

// ReplayStore is the replay service as seen by the HTTP edge.
type ReplayStore interface {
	Dates() ([]string, error)
	Times(date string) ([]string, error)
	Snapshot(date, hhmm string) ([]byte, error)
	Events(date string) (models.EventLog, error)
	RecordGo(ctx context.Context, p models.GoPayload) models.RecordGoResult
	Cadence(ctx context.Context, symbol string) models.CadenceResult
}

type ReplayHandler struct {
	logger *xlogger.Logger
	store  ReplayStore
}

func NewReplayHandler(logger *xlogger.Logger, store ReplayStore) *ReplayHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ReplayHandler{logger: logger.With("replay-api"), store: store}
}

func (h *ReplayHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/replay")
	g.GET("/dates", h.Dates)
	g.GET("/times", h.Times)
	g.GET("/snapshot", h.Snapshot)
	g.GET("/events", h.Events)
	g.POST("/record-go", h.RecordGo)
	g.POST("/cadence", h.Cadence)
}

func (h *ReplayHandler) Dates(c echo.Context) error {
	dates, err := h.store.Dates()
	if err != nil {
		h.logger.Error("list dates failed", xlogger.Error(err))
		return errorResponse(c, err, xhttp.InternalError)
	}
	return xhttp.JSONResponse(c, dates)
}

func (h *ReplayHandler) Times(c echo.Context) error {
	req := &models.ReplayDateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	times, err := h.store.Times(req.Date)
	if err != nil {
		return errorResponse(c, err, xhttp.InternalError)
	}
	return xhttp.JSONResponse(c, times)
}

// Snapshot serves the stored file byte for byte.
func (h *ReplayHandler) Snapshot(c echo.Context) error {
	req := &models.ReplaySnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	raw, err := h.store.Snapshot(req.Date, req.Time)
	if err != nil {
		return errorResponse(c, err, xhttp.InternalError)
	}
	return xhttp.RawJSONResponse(c, raw)
}

func (h *ReplayHandler) Events(c echo.Context) error {
	req := &models.ReplayDateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	log, err := h.store.Events(req.Date)
	if err != nil {
		h.logger.Error("read events failed", xlogger.String("date", req.Date), xlogger.Error(err))
		return errorResponse(c, err, xhttp.InternalError)
	}
	return xhttp.JSONResponse(c, log)
}

// RecordGo handles POST /replay/record-go. Duplicate and rate-limited GOs
// are successful skips.
func (h *ReplayHandler) RecordGo(c echo.Context) error {
	p := &models.GoPayload{}
	if verr := xhttp.ReadAndValidateRequest(c, p); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := usecase.ValidateGo(*p); err != nil {
		return errorResponse(c, err, xhttp.InternalError)
	}
	return xhttp.JSONResponse(c, h.store.RecordGo(c.Request().Context(), *p))
}

// Cadence handles POST /replay/cadence, a manual cadence run.
func (h *ReplayHandler) Cadence(c echo.Context) error {
	req := &models.CadenceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if q := strings.TrimSpace(c.QueryParam("symbol")); q != "" {
		req.Symbol = q
	}
	return xhttp.JSONResponse(c, h.store.Cadence(c.Request().Context(), req.Symbol))
}
