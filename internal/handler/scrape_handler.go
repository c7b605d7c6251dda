package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/scraper"
)

type ScrapeHandler struct {
	scraper scraper.Scraper
}

func NewScrapeHandler(s scraper.Scraper) (*ScrapeHandler, error) {
	if s == nil {
		return nil, fmt.Errorf("scraper is required")
	}
	return &ScrapeHandler{scraper: s}, nil
}

// RegisterScrapeRoutes exposes the in-process scrapers as a scraping backend.
func RegisterScrapeRoutes(router fiber.Router, s scraper.Scraper) error {
	h, err := NewScrapeHandler(s)
	if err != nil {
		return err
	}

	router.Group("/v1").Post("/scrape", h.Scrape)
	return nil
}

type scrapeRequest struct {
	URL    string `json:"url"`
	UserID string `json:"userId"`
}

func (h *ScrapeHandler) Scrape(c *fiber.Ctx) error {
	var req scrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return toHTTPError(fmt.Errorf("%w: url is required", domain.ErrValidation))
	}

	result, err := h.scraper.Scrape(requestContext(c), rawURL, strings.TrimSpace(req.UserID))
	if err != nil {
		return toScrapeHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

// toScrapeHTTPError keeps 4xx upstream statuses and reports everything else
// as a bad gateway.
func toScrapeHTTPError(err error) error {
	var scrapeErr *scraper.ScrapeError
	if errors.As(err, &scrapeErr) {
		switch {
		case scrapeErr.StatusCode >= 400 && scrapeErr.StatusCode < 500:
			return fiber.NewError(scrapeErr.StatusCode, scrapeErr.Error())
		case scrapeErr.Reason() == "timeout":
			return fiber.NewError(fiber.StatusGatewayTimeout, scrapeErr.Error())
		default:
			return fiber.NewError(fiber.StatusBadGateway, scrapeErr.Error())
		}
	}
	return toHTTPError(err)
}
