package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/render"
	"github.com/kursadbilgin/linkbot/internal/service"
)

type BatchService interface {
	HandleText(ctx context.Context, text string, dest domain.Destination, transport chat.Transport) (service.TextOutcome, error)
	Snapshot(batchID string) (domain.BatchSnapshot, error)
	ReportItem(ctx context.Context, batchID string, index int, result *domain.ScrapeResult, errMsg string, success bool) error
}

type BatchHandler struct {
	service   BatchService
	transport chat.Transport
}

func NewBatchHandler(service BatchService, transport chat.Transport) (*BatchHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("chat transport is required")
	}
	return &BatchHandler{service: service, transport: transport}, nil
}

func RegisterBatchRoutes(router fiber.Router, service BatchService, transport chat.Transport) error {
	h, err := NewBatchHandler(service, transport)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/batches", h.CreateBatch)
	v1.Get("/batches/:batchId", h.GetBatch)
	v1.Post("/batches/:batchId/items/:index", h.UpdateItem)

	return nil
}

type createBatchRequest struct {
	Text   string   `json:"text"`
	URLs   []string `json:"urls"`
	ChatID string   `json:"chatId"`
	UserID string   `json:"userId"`
}

type createBatchResponse struct {
	BatchID string `json:"batchId,omitempty"`
	Total   int    `json:"total"`
	Mode    string `json:"mode,omitempty"`
}

type updateItemRequest struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error"`
	Result  *domain.ScrapeResult `json:"result"`
}

type batchResponse struct {
	BatchID   string        `json:"batchId"`
	ChatID    string        `json:"chatId"`
	UserID    string        `json:"userId,omitempty"`
	Mode      string        `json:"mode,omitempty"`
	Stats     domain.Stats  `json:"stats"`
	Percent   int           `json:"percent"`
	Done      bool          `json:"done"`
	Status    string        `json:"status"`
	Items     []domain.Item `json:"items"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (h *BatchHandler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	text := req.Text
	if len(req.URLs) > 0 {
		text = strings.Join(req.URLs, " ")
	}

	dest := domain.Destination{ChatID: strings.TrimSpace(req.ChatID), UserID: strings.TrimSpace(req.UserID)}
	outcome, err := h.service.HandleText(requestContext(c), text, dest, h.transport)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(createBatchResponse{
		BatchID: outcome.BatchID,
		Total:   outcome.Total,
		Mode:    outcome.Mode.String(),
	})
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	snapshot, err := h.service.Snapshot(c.Params("batchId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(snapshot))
}

func (h *BatchHandler) UpdateItem(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	index, err := c.ParamsInt("index")
	if err != nil {
		return toHTTPError(fmt.Errorf("%w: index must be an integer", domain.ErrValidation))
	}

	var req updateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Success && req.Result == nil {
		return toHTTPError(fmt.Errorf("%w: a successful item report requires a result", domain.ErrValidation))
	}
	if !req.Success && strings.TrimSpace(req.Error) == "" {
		req.Error = "reported as failed"
	}

	if err := h.service.ReportItem(requestContext(c), batchID, index, req.Result, req.Error, req.Success); err != nil {
		return toHTTPError(err)
	}

	snapshot, err := h.service.Snapshot(batchID)
	if err != nil {
		// Unknown or already evicted batches are accepted silently.
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusOK).JSON(toBatchResponse(snapshot))
}

func toBatchResponse(s domain.BatchSnapshot) batchResponse {
	return batchResponse{
		BatchID:   s.ID,
		ChatID:    s.Destination.ChatID,
		UserID:    s.Destination.UserID,
		Mode:      s.Mode.String(),
		Stats:     s.Stats,
		Percent:   s.Stats.Percent(),
		Done:      s.Stats.Pending == 0,
		Status:    render.Render(s),
		Items:     s.Items,
		CreatedAt: s.CreatedAt,
	}
}
