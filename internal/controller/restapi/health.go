package restapi

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi/response"
	"github.com/dkrasnov/receipt-gateway/pkg/logger"
)

const serviceName = "receipt-recognition-gateway"

func newHealthHandler(pool *pgxpool.Pool, l logger.Interface) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if err := pool.Ping(ctx.UserContext()); err != nil {
			l.Error(err, "restapi - health - pool.Ping")
			return ctx.Status(http.StatusServiceUnavailable).JSON(response.Health{
				Status:    "degraded",
				Service:   serviceName,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}

		return ctx.Status(http.StatusOK).JSON(response.Health{
			Status:    "ok",
			Service:   serviceName,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
