package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/telemetry"
)

// Success writes the {success, message, data} envelope.
func Success(c *fiber.Ctx, status int, message string, data any) error {
	body := fiber.Map{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

// Fail writes the {success, message, errors?} envelope.
func Fail(c *fiber.Ctx, status int, message string, errs []apierr.FieldError) error {
	body := fiber.Map{"success": false, "message": message}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	return c.Status(status).JSON(body)
}

// ErrorHandler maps domain errors to their fixed status and everything else
// to a generic 500. Internal detail leaks only outside production.
func ErrorHandler(appEnv string) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e := apierr.From(err); e != nil {
			return Fail(c, e.Status, e.Message, e.Errors)
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return Fail(c, fe.Code, fe.Message, nil)
		}

		telemetry.L().Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("unhandled_error")

		body := fiber.Map{"success": false, "message": "Something went wrong"}
		if appEnv != "production" {
			body["errors"] = []fiber.Map{{"detail": err.Error()}}
		}
		return c.Status(fiber.StatusInternalServerError).JSON(body)
	}
}
