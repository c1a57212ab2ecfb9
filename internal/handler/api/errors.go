package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"TriggerDesk/internal/domain/models"
	xhttp "TriggerDesk/pkg/http"
)

// errorResponse maps domain sentinels onto the HTTP failure contract. Errors
// that are not input or lookup problems are reported as fallback.
func errorResponse(c echo.Context, err error, fallback func(string) *xhttp.AppError) error {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	case errors.Is(err, models.ErrNotFound):
		return xhttp.NotFoundResponse(c, err.Error())
	default:
		return xhttp.AppErrorResponse(c, fallback(err.Error()))
	}
}
