package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/linkbot/internal/chat"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/observability"
	"github.com/kursadbilgin/linkbot/internal/repository"
	"go.uber.org/zap"
)

const (
	helpText = "Send me one or more links and I will fetch them for you.\n" +
		"Several links in one message are processed as a batch with a live progress message.\n" +
		"/archive on|off toggles saving delivered links."
	noLinksText = "I could not find any links in that message."
)

// ChatHandler receives Bot API webhook updates.
type ChatHandler struct {
	batches   BatchService
	settings  repository.SettingsRepository
	transport chat.Transport
	logger    *zap.Logger
}

func NewChatHandler(
	batches BatchService,
	settings repository.SettingsRepository,
	transport chat.Transport,
	logger *zap.Logger,
) (*ChatHandler, error) {
	if batches == nil {
		return nil, fmt.Errorf("batch service is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("chat transport is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatHandler{
		batches:   batches,
		settings:  settings,
		transport: transport,
		logger:    logger,
	}, nil
}

func RegisterChatRoutes(
	router fiber.Router,
	batches BatchService,
	settings repository.SettingsRepository,
	transport chat.Transport,
	logger *zap.Logger,
) error {
	h, err := NewChatHandler(batches, settings, transport, logger)
	if err != nil {
		return err
	}

	router.Group("/v1").Post("/chat/updates", h.HandleUpdate)
	return nil
}

type chatUpdate struct {
	UpdateID int64        `json:"update_id"`
	Message  *chatMessage `json:"message"`
}

type chatMessage struct {
	MessageID int64     `json:"message_id"`
	Chat      chatPeer  `json:"chat"`
	From      *chatPeer `json:"from"`
	Text      string    `json:"text"`
	Caption   string    `json:"caption"`
}

type chatPeer struct {
	ID int64 `json:"id"`
}

// HandleUpdate always acknowledges well-formed updates so the Bot API does
// not redeliver them; failures are reported to the user or logged.
func (h *ChatHandler) HandleUpdate(c *fiber.Ctx) error {
	var update chatUpdate
	if err := c.BodyParser(&update); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if update.Message == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}

	msg := update.Message
	dest := domain.Destination{ChatID: strconv.FormatInt(msg.Chat.ID, 10)}
	if msg.From != nil {
		dest.UserID = strconv.FormatInt(msg.From.ID, 10)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	ctx := requestContext(c)
	logger := observability.WithContextLogger(h.logger, ctx).With(
		zap.Int64("updateId", update.UpdateID),
		zap.String("chatId", dest.ChatID),
	)

	command, args := parseCommand(text)
	switch command {
	case "/start", "/help":
		h.reply(ctx, logger, dest.ChatID, helpText)
	case "/archive":
		h.reply(ctx, logger, dest.ChatID, h.archiveCommand(ctx, dest.UserID, args))
	default:
		outcome, err := h.batches.HandleText(ctx, text, dest, h.transport)
		switch {
		case err == nil:
			logger.Info("chat message accepted",
				zap.String("batchId", outcome.BatchID),
				zap.Int("links", outcome.Total),
			)
		case errors.Is(err, domain.ErrValidation):
			h.reply(ctx, logger, dest.ChatID, validationReply(err))
		default:
			logger.Error("failed to handle chat message", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

func (h *ChatHandler) archiveCommand(ctx context.Context, userID string, args []string) string {
	if userID == "" {
		return "Archiving needs a user account."
	}

	settings, err := h.settings.Get(ctx, userID)
	if err != nil {
		return "Could not load your settings, try again later."
	}

	if len(args) == 0 {
		return fmt.Sprintf("Archiving is %s.", onOff(settings.ArchiveEnabled))
	}

	switch strings.ToLower(args[0]) {
	case "on":
		settings.ArchiveEnabled = true
	case "off":
		settings.ArchiveEnabled = false
	default:
		return "Usage: /archive on|off"
	}

	if err := h.settings.Save(ctx, settings); err != nil {
		return "Could not save your settings, try again later."
	}
	return fmt.Sprintf("Archiving is now %s.", onOff(settings.ArchiveEnabled))
}

func (h *ChatHandler) reply(ctx context.Context, logger *zap.Logger, chatID string, text string) {
	if _, err := h.transport.SendMessage(ctx, chatID, text); err != nil {
		logger.Warn("failed to send chat reply", zap.Error(err))
	}
}

// parseCommand splits "/cmd@bot arg..." into the command and its arguments.
// Non-command text returns an empty command.
func parseCommand(text string) (string, []string) {
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	return command, fields[1:]
}

func validationReply(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "no links") {
		return noLinksText
	}
	return strings.TrimPrefix(msg, domain.ErrValidation.Error()+": ")
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
