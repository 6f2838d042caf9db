package v1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dkrasnov/receipt-gateway/internal/controller/restapi/response"
)

func errorResponse(ctx *fiber.Ctx, status int, message string) error {
	return ctx.Status(status).JSON(response.Error{Error: message})
}
