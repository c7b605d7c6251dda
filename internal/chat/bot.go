package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/linkbot/internal/domain"
	"github.com/kursadbilgin/linkbot/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	defaultBotTimeout = 15 * time.Second
	maxTextLength     = 4096
	maxCaptionLength  = 1024
	notModifiedMarker = "message is not modified"
)

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type editMessageRequest struct {
	ChatID                string `json:"chat_id"`
	MessageID             int64  `json:"message_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type sendPhotoRequest struct {
	ChatID  string `json:"chat_id"`
	Photo   string `json:"photo"`
	Caption string `json:"caption,omitempty"`
}

type sendVideoRequest struct {
	ChatID  string `json:"chat_id"`
	Video   string `json:"video"`
	Caption string `json:"caption,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type apiMessage struct {
	MessageID int64 `json:"message_id"`
}

var _ Transport = (*BotTransport)(nil)

// BotTransport talks to a Telegram compatible Bot API over HTTP. Calls are
// paced per chat through the shared rate limiter.
type BotTransport struct {
	client  *resty.Client
	baseURL string
	token   string
	limiter ratelimit.RateLimiter
	logger  *zap.Logger
}

func NewBotTransport(baseURL string, token string, limiter ratelimit.RateLimiter, logger *zap.Logger) (*BotTransport, error) {
	client := resty.New()
	client.SetTimeout(defaultBotTimeout)
	client.SetRetryCount(0)

	return NewBotTransportWithClient(baseURL, token, client, limiter, logger)
}

func NewBotTransportWithClient(
	baseURL string,
	token string,
	client *resty.Client,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*BotTransport, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("bot api url is required")
	}
	if _, err := url.ParseRequestURI(trimmedBase); err != nil {
		return nil, fmt.Errorf("invalid bot api url: %w", err)
	}
	trimmedToken := strings.TrimSpace(token)
	if trimmedToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultBotTimeout)
	}
	client.SetRetryCount(0)

	return &BotTransport{
		client:  client,
		baseURL: trimmedBase,
		token:   trimmedToken,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (t *BotTransport) SendMessage(ctx context.Context, chatID string, text string) (domain.MessageRef, error) {
	msg, err := t.call(ctx, "sendMessage", chatID, sendMessageRequest{
		ChatID:                chatID,
		Text:                  clip(text, maxTextLength),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

// EditMessage replaces the text of an earlier message. An edit that would
// not change the text is treated as success.
func (t *BotTransport) EditMessage(ctx context.Context, ref domain.MessageRef, text string) error {
	_, err := t.call(ctx, "editMessageText", ref.ChatID, editMessageRequest{
		ChatID:                ref.ChatID,
		MessageID:             ref.MessageID,
		Text:                  clip(text, maxTextLength),
		DisableWebPagePreview: true,
	})
	if err != nil && isNotModified(err) {
		t.logger.Debug("edit skipped, message not modified",
			zap.String("chatId", ref.ChatID),
			zap.Int64("messageId", ref.MessageID),
		)
		return nil
	}
	return err
}

func (t *BotTransport) SendPhoto(ctx context.Context, chatID string, photoURL string, caption string) (domain.MessageRef, error) {
	msg, err := t.call(ctx, "sendPhoto", chatID, sendPhotoRequest{
		ChatID:  chatID,
		Photo:   photoURL,
		Caption: clip(caption, maxCaptionLength),
	})
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

func (t *BotTransport) SendVideo(ctx context.Context, chatID string, videoURL string, caption string) (domain.MessageRef, error) {
	msg, err := t.call(ctx, "sendVideo", chatID, sendVideoRequest{
		ChatID:  chatID,
		Video:   videoURL,
		Caption: clip(caption, maxCaptionLength),
	})
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{ChatID: chatID, MessageID: msg.MessageID}, nil
}

func (t *BotTransport) call(ctx context.Context, method string, chatID string, payload any) (apiMessage, error) {
	if t == nil || t.client == nil {
		return apiMessage{}, &TransportError{Method: method, Message: "transport is not initialized"}
	}
	if strings.TrimSpace(chatID) == "" {
		return apiMessage{}, &TransportError{Method: method, Message: "chat id is required"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := t.limiter.Wait(ctx, chatID); err != nil {
		return apiMessage{}, &TransportError{
			Method:    method,
			Message:   "rate limiter wait failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	response, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(t.methodURL(method))
	if err != nil {
		return apiMessage{}, &TransportError{
			Method:    method,
			Message:   "request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     redact(err, t.token),
		}
	}

	statusCode := response.StatusCode()

	var body apiResponse
	decodeErr := json.Unmarshal(response.Body(), &body)

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices && decodeErr == nil && body.OK {
		var msg apiMessage
		// editMessageText may answer with a bare boolean.
		_ = json.Unmarshal(body.Result, &msg)
		return msg, nil
	}

	message := strings.TrimSpace(body.Description)
	if message == "" {
		message = fmt.Sprintf("bot api returned status %d", statusCode)
	}
	if body.ErrorCode > 0 {
		statusCode = body.ErrorCode
	}

	return apiMessage{}, &TransportError{
		Method:     method,
		StatusCode: statusCode,
		Message:    message,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func (t *BotTransport) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
}

func isNotModified(err error) bool {
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		return false
	}
	return strings.Contains(strings.ToLower(transportErr.Message), notModifiedMarker)
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func clip(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// redactedError hides the bot token that resty embeds in request errors.
type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

func redact(err error, token string) error {
	if err == nil || token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, token, "<redacted>"), cause: err}
}
