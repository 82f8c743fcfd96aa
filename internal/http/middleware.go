package httpapp

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"

	ContextKeyCorrelationID = "correlation_id"

	maxCorrelationIDLen = 128
)

// correlationID threads the caller's X-Correlation-ID through the request,
// generating one when it is absent or unusable, and echoes it back.
func correlationID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(HeaderCorrelationID))
		if id == "" || len(id) > maxCorrelationIDLen || strings.ContainsAny(id, "\r\n") {
			id = uuid.NewString()
		}
		c.Set(ContextKeyCorrelationID, id)
		c.Response().Header().Set(HeaderCorrelationID, id)
		return next(c)
	}
}

func correlationIDFrom(c *echo.Context) string {
	id, _ := c.Get(ContextKeyCorrelationID).(string)
	return id
}
