package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"TriggerDesk/internal/domain/models"
	"TriggerDesk/internal/usecase"
	xhttp "TriggerDesk/pkg/http"
	xlogger "TriggerDesk/pkg/logger"
)

// ZoneSelector is the Zone Reducer as seen by the HTTP edge.
type ZoneSelector interface {
	Active(ctx context.Context, symbol, tf string, price *float64) (models.ActiveZoneSelection, error)
}

// EnginesHandler serves the zone reducer and the Engine 3/4 scorers.
type EnginesHandler struct {
	logger          *xlogger.Logger
	zones           ZoneSelector
	reactions       usecase.ReactionEvaluator
	volumes         usecase.VolumeEvaluator
	defaultStrategy string
}

func NewEnginesHandler(logger *xlogger.Logger, zones ZoneSelector, reactions usecase.ReactionEvaluator, volumes usecase.VolumeEvaluator, defaultStrategy string) *EnginesHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &EnginesHandler{
		logger:          logger.With("api"),
		zones:           zones,
		reactions:       reactions,
		volumes:         volumes,
		defaultStrategy: defaultStrategy,
	}
}

func (h *EnginesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/zones/active", h.ActiveZone)
	e.GET("/reaction", h.Reaction)
	e.GET("/volume", h.Volume)
}

// ActiveZone handles GET /zones/active.
func (h *EnginesHandler) ActiveZone(c echo.Context) error {
	req := &models.ZonesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	price, aerr := xhttp.OptionalFloatParam(c, "currentPrice")
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	sel, err := h.zones.Active(c.Request().Context(), req.Symbol, req.TF, price)
	if err != nil {
		h.logger.Warn("zones request failed", xlogger.String("symbol", req.Symbol), xlogger.String("tf", req.TF), xlogger.Error(err))
		return errorResponse(c, err, xhttp.UpstreamError)
	}
	return xhttp.JSONResponse(c, sel)
}

// Reaction handles GET /reaction. Scoring problems come back as 200 with
// reason codes; only malformed lo/hi are rejected.
func (h *EnginesHandler) Reaction(c echo.Context) error {
	req := &models.ReactionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	q, err := usecase.ParseReactionRequest(*req, h.defaultStrategy)
	if err != nil {
		return errorResponse(c, err, xhttp.InternalError)
	}
	return xhttp.JSONResponse(c, h.reactions.Evaluate(c.Request().Context(), q))
}

// Volume handles GET /volume.
func (h *EnginesHandler) Volume(c echo.Context) error {
	req := &models.VolumeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.JSONResponse(c, h.volumes.Evaluate(c.Request().Context(), usecase.VolumeQueryFrom(*req)))
}
