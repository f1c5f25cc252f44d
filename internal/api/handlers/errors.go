package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/homeflix/internal/controllers"
	"github.com/amaumene/homeflix/internal/models"
	"github.com/amaumene/homeflix/internal/services/apiclient"
)

// StatusFor maps an error returned by a handler to an HTTP status
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, controllers.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case apiclient.IsTransient(err):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders handler errors as {"error": "..."}. Internal details
// are logged, not returned.
func ErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := StatusFor(err)
		msg := err.Error()
		switch {
		case code >= fiber.StatusInternalServerError && code != fiber.StatusBadGateway:
			logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
			msg = "internal server error"
		case code == fiber.StatusBadGateway:
			logger.WithError(err).WithField("path", c.Path()).Warn("Upstream unavailable")
			msg = "metadata provider unavailable"
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

// mediaType reads a :type path parameter
func mediaType(c *fiber.Ctx, name string) (models.MediaType, error) {
	kind, err := models.ParseMediaType(c.Params(name))
	if err != nil {
		return "", badRequest(err.Error())
	}
	return kind, nil
}

// optionalInt parses an optional integer, returning nil when absent
func optionalInt(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badRequest("not a number: " + raw)
	}
	return &n, nil
}
