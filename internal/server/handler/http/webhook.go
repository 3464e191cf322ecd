package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"go.uber.org/zap"

	"github.com/shaonote/starbot/internal/models"
)

// ChatService answers inbound chat messages.
type ChatService interface {
	Reply(ctx context.Context, in models.Inbound) (string, bool, error)
}

// LineReplier answers a LINE event through its reply token.
type LineReplier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// WebhookRecorder counts processed webhook events.
type WebhookRecorder interface {
	WebhookEvent(outcome string)
}

// WebhookHandler receives LINE Messaging API callbacks.
type WebhookHandler struct {
	ChannelSecret string
	ChatService   ChatService
	Replier       LineReplier
	Metrics       WebhookRecorder
	Logger        *zap.Logger
}

type webhookStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Line verifies the callback signature and replies to every text message.
// It always answers 200 so the platform does not redeliver; failures are
// reported in the body.
func (h *WebhookHandler) Line(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(h.ChannelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.log().Warn("line webhook signature rejected")
		} else {
			h.log().Error("line webhook parse failed", zap.Error(err))
		}
		h.record("rejected")
		writeJSON(w, http.StatusOK, webhookStatus{Status: "error", Message: err.Error()})
		return
	}

	var firstErr error
	for _, ev := range cb.Events {
		if err := h.handleEvent(r.Context(), ev); err != nil {
			h.log().Error("line event failed", zap.Error(err))
			h.record("error")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		writeJSON(w, http.StatusOK, webhookStatus{Status: "error", Message: firstErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, webhookStatus{Status: "ok"})
}

func (h *WebhookHandler) handleEvent(ctx context.Context, ev webhook.EventInterface) error {
	e, ok := ev.(webhook.MessageEvent)
	if !ok {
		h.record("ignored")
		return nil
	}
	msg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		h.record("ignored")
		return nil
	}
	src, sender, ok := lineSource(e.Source)
	if !ok {
		h.record("ignored")
		return nil
	}

	reply, fresh, err := h.ChatService.Reply(ctx, models.Inbound{
		Source:     src,
		ExternalID: msg.Id,
		SenderID:   sender,
		Text:       msg.Text,
		Payload:    e,
	})
	if err != nil {
		return err
	}
	if !fresh {
		h.record("duplicate")
		return nil
	}
	if reply != "" && e.ReplyToken != "" {
		if err := h.Replier.Reply(ctx, e.ReplyToken, reply); err != nil {
			return err
		}
	}
	h.record("replied")
	return nil
}

func lineSource(s webhook.SourceInterface) (models.ChatSource, string, bool) {
	switch v := s.(type) {
	case webhook.UserSource:
		return models.ChatSource{Kind: models.ChatUser, ID: v.UserId}, v.UserId, true
	case webhook.GroupSource:
		return models.ChatSource{Kind: models.ChatGroup, ID: v.GroupId}, v.UserId, true
	case webhook.RoomSource:
		return models.ChatSource{Kind: models.ChatRoom, ID: v.RoomId}, v.UserId, true
	}
	return models.ChatSource{}, "", false
}

func (h *WebhookHandler) record(outcome string) {
	if h.Metrics != nil {
		h.Metrics.WebhookEvent(outcome)
	}
}

func (h *WebhookHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
