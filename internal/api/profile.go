package api

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/storage"
	"github.com/mindmed/mindmed-api/internal/store"
)

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	profile, err := s.store.GetProfile(c.UserContext(), who.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Profile not found",
		})
	}
	if err != nil {
		return err
	}

	return c.JSON(models.ProfileResponse{Profile: profile, Success: true})
}

// handleUpsertProfile replaces every editable profile field.
func (s *Server) handleUpsertProfile(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	var req models.ProfileRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	profile, err := s.store.UpsertProfile(c.UserContext(), req.ToProfile(who.UserID))
	if err != nil {
		return err
	}

	s.logger.Info("Profile saved", "user_id", who.UserID)
	return c.JSON(models.ProfileResponse{Profile: profile, Success: true})
}

// handleUploadImage stores a branding image from the multipart "file" field
// and points the profile at it.
func (s *Server) handleUploadImage(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}

	kind := models.ImageKind(c.Params("kind"))
	if !kind.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "Image kind must be logo, signature or stamp")
	}

	header, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "File is required")
	}
	if header.Size > storage.MaxImageSize {
		return fiber.NewError(fiber.StatusBadRequest, "File exceeds 5 MB")
	}
	f, err := header.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, storage.MaxImageSize+1))
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	url, err := storage.UploadImage(ctx, s.storage, who.UserID, kind, header.Header.Get("Content-Type"), data, s.now())
	if err != nil {
		return err
	}
	if err := s.store.SetProfileImage(ctx, who.UserID, kind, url); err != nil {
		return err
	}

	s.logger.Info("Profile image uploaded", "user_id", who.UserID, "kind", kind)
	return c.JSON(fiber.Map{
		"success": true,
		"kind":    kind,
		"url":     url,
	})
}
