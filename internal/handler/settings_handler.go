package handler

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/repository"
)

type SettingsHandler struct {
	settings repository.SettingsRepository
}

func NewSettingsHandler(settings repository.SettingsRepository) (*SettingsHandler, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	return &SettingsHandler{settings: settings}, nil
}

func RegisterSettingsRoutes(router fiber.Router, settings repository.SettingsRepository) error {
	h, err := NewSettingsHandler(settings)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/users/:userId/settings", h.GetSettings)
	v1.Put("/users/:userId/settings", h.UpdateSettings)

	return nil
}

type updateSettingsRequest struct {
	ArchiveEnabled *bool `json:"archiveEnabled"`
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.settings.Get(requestContext(c), strings.TrimSpace(c.Params("userId")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(settings)
}

func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ArchiveEnabled == nil {
		return toHTTPError(fmt.Errorf("%w: archiveEnabled is required", domain.ErrValidation))
	}

	ctx := requestContext(c)
	userID := strings.TrimSpace(c.Params("userId"))

	settings, err := h.settings.Get(ctx, userID)
	if err != nil {
		return toHTTPError(err)
	}
	settings.ArchiveEnabled = *req.ArchiveEnabled

	if err := h.settings.Save(ctx, settings); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(settings)
}
