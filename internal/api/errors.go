package api

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mindmed/mindmed-api/internal/billing"
	"github.com/mindmed/mindmed-api/internal/identity"
	"github.com/mindmed/mindmed-api/internal/prescription"
	"github.com/mindmed/mindmed-api/internal/storage"
	"github.com/mindmed/mindmed-api/internal/store"
)

var (
	errInvalidBody     = errors.New("invalid request body")
	errUnauthenticated = errors.New("unauthenticated")
)

// errorStatus maps domain errors to HTTP status codes and user-facing
// messages. Unknown errors are 500 with a generic message.
func errorStatus(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.Is(err, errInvalidBody):
		return fiber.StatusBadRequest, "Invalid request body"
	case errors.Is(err, prescription.ErrValidation),
		errors.Is(err, storage.ErrInvalidImage):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, billing.ErrMalformedPayload):
		if strings.Contains(err.Error(), "email not found") {
			return fiber.StatusBadRequest, "Email not found in payload"
		}
		return fiber.StatusBadRequest, "Malformed payload"
	case errors.Is(err, errUnauthenticated),
		errors.Is(err, identity.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, billing.ErrInvalidSignature):
		return fiber.StatusUnauthorized, "Invalid signature"
	case errors.Is(err, prescription.ErrQuotaExceeded):
		return fiber.StatusPaymentRequired, "Quota exceeded. Please upgrade your plan."
	case errors.Is(err, prescription.ErrNoActiveSubscription):
		return fiber.StatusForbidden, "No active subscription found"
	case errors.Is(err, prescription.ErrProfileNotFound):
		return fiber.StatusNotFound, "Profile not found"
	case errors.Is(err, billing.ErrUserNotFound),
		errors.Is(err, identity.ErrUserNotFound):
		return fiber.StatusNotFound, "User not found"
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound, "Not found"
	}
	return fiber.StatusInternalServerError, "Internal server error"
}

// errorHandler renders every error returned by a handler as {error}.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status, message := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
		if s.cfg.Server.Environment != "production" {
			message = err.Error()
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// validationError turns validator output into one readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fiber.NewError(fiber.StatusBadRequest, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "url":
		return field + " must be a valid URL"
	case "min":
		return field + " must have at least " + fe.Param() + " characters"
	case "max":
		return field + " must have at most " + fe.Param() + " characters"
	case "len":
		return field + " must have exactly " + fe.Param() + " characters"
	}
	return field + " is invalid"
}
