package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/shop_checkout/internal/service"
)

var errUnauthorized = errors.New("unauthorized")

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, service.ErrSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrInFlight):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrExternal):
		return http.StatusBadGateway, "upstream error"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail logs err under event and answers with the mapped status.
func fail(c echo.Context, l *slog.Logger, event string, err error) error {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "error", err)
		return c.JSON(status, map[string]string{"error": msg})
	}
	l.Warn(event, "status", status, "error", err)
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func userID(c echo.Context) (string, error) {
	s, ok := c.Get("user_id").(string)
	if !ok || s == "" {
		return "", errUnauthorized
	}
	return s, nil
}

func userUUID(c echo.Context) (uuid.UUID, error) {
	s, err := userID(c)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errUnauthorized
	}
	return id, nil
}

func userEmail(c echo.Context) (string, error) {
	s, ok := c.Get("email").(string)
	if !ok || s == "" {
		return "", errUnauthorized
	}
	return s, nil
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	return uuid.Parse(c.Param(name))
}
