package handler

import (
	"errors"
	"fmt"
	"net/http"

	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

const genericError = "something went wrong, please try again"

type envelope struct {
	Success          bool   `json:"success"`
	Data             any    `json:"data,omitempty"`
	Message          string `json:"message,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed,omitempty"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// ErrorHandler renders every failure as {success:false, error}. Only errors
// the services mark as user-facing keep their message.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request failed", "status", status, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, errorEnvelope{Error: msg})
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}

	var se *service.Error
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, genericError
	}

	switch {
	case errors.Is(se.Kind, service.ErrValidation):
		return http.StatusBadRequest, se.Msg
	case errors.Is(se.Kind, service.ErrUnauthorized):
		return http.StatusUnauthorized, se.Msg
	case errors.Is(se.Kind, service.ErrForbidden):
		return http.StatusForbidden, se.Msg
	case errors.Is(se.Kind, service.ErrNotFound):
		return http.StatusNotFound, se.Msg
	case errors.Is(se.Kind, service.ErrStateConflict):
		return http.StatusConflict, se.Msg
	case errors.Is(se.Kind, service.ErrGateway):
		return http.StatusBadGateway, se.Msg
	}
	return http.StatusInternalServerError, genericError
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}
