package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/observability"
)

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// requestContext returns a context that outlives the fiber request and carries
// its request id. Work started from a handler may keep running after the
// response is written, so it must not hold on to the fasthttp context.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithRequestID(ctx, id)
	}
	return ctx
}
