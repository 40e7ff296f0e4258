package api

import (
	"encoding/base64"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/store"
)

// handleGeneratePrescription renders a prescription PDF for the caller and
// returns it base64 encoded.
func (s *Server) handleGeneratePrescription(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var req models.PrescriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return errInvalidBody
	}

	res, err := s.generator.Generate(c.UserContext(), who, req)
	if err != nil {
		return err
	}

	return c.JSON(models.PrescriptionResponse{
		PDF:            base64.StdEncoding.EncodeToString(res.PDF),
		PrescriptionID: res.Prescription.ID,
		Remaining:      res.Remaining,
	})
}

func (s *Server) handleListPrescriptions(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	list, err := s.store.ListPrescriptions(c.UserContext(), who.UserID, historyLimit)
	if err != nil {
		s.logger.Error("Error fetching prescriptions", "user_id", who.UserID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch prescriptions"})
	}

	return c.JSON(fiber.Map{"prescriptions": list})
}

func (s *Server) handleDeletePrescription(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid prescription ID",
		})
	}

	ctx := c.UserContext()
	err = s.store.DeletePrescription(ctx, who.UserID, id.String())
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Prescription not found",
		})
	}
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateDashboard(ctx, who.UserID); err != nil {
			s.logger.Warn("Failed to invalidate dashboard cache", "user_id", who.UserID, "error", err)
		}
	}

	s.logger.Info("Prescription deleted", "user_id", who.UserID, "prescription_id", id)
	return c.JSON(fiber.Map{"success": true})
}
