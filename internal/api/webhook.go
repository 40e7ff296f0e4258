package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mindmed/mindmed-api/internal/billing"
	"github.com/mindmed/mindmed-api/internal/models"
)

// handleCaktoWebhook authenticates and applies a payment notification.
func (s *Server) handleCaktoWebhook(c *fiber.Ctx) error {
	body := c.Body()

	if err := s.verifier.Verify(body, c.Get(billing.SignatureHeader)); err != nil {
		s.logger.Warn("Rejected webhook with invalid signature", "ip", c.IP())
		return err
	}

	out, err := s.webhooks.Process(c.UserContext(), body)
	if err != nil {
		return err
	}

	return c.JSON(models.WebhookResponse{Success: true, Message: out.Message})
}
