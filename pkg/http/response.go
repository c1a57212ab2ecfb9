package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// JSONResponse writes v as the response body with status 200. Endpoint
// contracts carry their own ok flag, so there is no envelope.
func JSONResponse(c echo.Context, v interface{}) error {
	return c.JSON(http.StatusOK, v)
}

// RawJSONResponse writes an already encoded JSON document.
func RawJSONResponse(c echo.Context, body []byte) error {
	return c.JSONBlob(http.StatusOK, body)
}

// FailResponse writes {ok:false, error, reasonCodes} with the given status.
func FailResponse(c echo.Context, status int, message string, reasonCodes []string, details interface{}) error {
	if reasonCodes == nil {
		reasonCodes = []string{}
	}
	return c.JSON(status, FailureBody{
		OK:          false,
		Error:       message,
		ReasonCodes: reasonCodes,
		Details:     details,
	})
}

// BadRequestResponse writes a 400 for validation errors returned by ReadAndValidateRequest.
func BadRequestResponse(c echo.Context, details interface{}) error {
	codes := []string{"INVALID_INPUT"}
	if errs, ok := details.([]ValidationError); ok {
		for _, e := range errs {
			codes = append(codes, e.Code)
		}
	}
	return FailResponse(c, http.StatusBadRequest, "invalid input", codes, details)
}

// NotFoundResponse writes a 404.
func NotFoundResponse(c echo.Context, message string) error {
	return FailResponse(c, http.StatusNotFound, message, []string{"NOT_FOUND"}, nil)
}

// InternalServerErrorResponse writes a 500.
func InternalServerErrorResponse(c echo.Context) error {
	return FailResponse(c, http.StatusInternalServerError, "Something went wrong", []string{"INTERNAL"}, nil)
}

// AppErrorResponse writes an application error with its own status.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return FailResponse(c, appErr.Status, appErr.Error(), []string{appErr.Code}, appErr.Params)
	}
	return InternalServerErrorResponse(c)
}
