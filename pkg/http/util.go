package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	xutil "TriggerDesk/pkg/util"
)

// OptionalFloatParam reads an optional finite float query parameter. A
// present but malformed value is a bad request.
func OptionalFloatParam(c echo.Context, name string) (*float64, *AppError) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, ok := xutil.ParseFloat(raw)
	if !ok {
		return nil, NewAppError("INVALID_INPUT", name, name+" must be a finite number", http.StatusBadRequest)
	}
	return &v, nil
}
