package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// HealthCheck is one dependency probed by /readyz.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

func PostgresCheck(sqlDB *sql.DB) HealthCheck {
	return HealthCheck{Name: "postgres", Ping: sqlDB.PingContext}
}

func RedisCheck(rdb *redis.Client) HealthCheck {
	return HealthCheck{Name: "redis", Ping: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

func RegisterHealthRoutes(app fiber.Router, checks ...HealthCheck) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks...))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(checks ...HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		status := "ready"
		statusCode := fiber.StatusOK
		results := fiber.Map{}

		for _, check := range checks {
			if check.Ping == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				results[check.Name] = "down"
				status = "not_ready"
				statusCode = fiber.StatusServiceUnavailable
				continue
			}
			results[check.Name] = "ok"
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
