package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shaonote/starbot/internal/chat"
	"github.com/shaonote/starbot/internal/models"
)

// DispatchRecorder counts dispatch outcomes per platform.
type DispatchRecorder interface {
	Dispatch(platform, outcome string)
}

// DispatchResult is the outcome of one Dispatch call.
type DispatchResult struct {
	OK    bool
	Reply string
	Err   error
}

// Dispatcher sends a one-off prompt to the model on behalf of a chat and
// pushes the answer there. The prompt is stored as a user message so it
// becomes context for later turns.
type Dispatcher struct {
	chat    *ChatService
	pusher  chat.Pusher
	metrics DispatchRecorder
	log     *zap.Logger
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(c *ChatService, pusher chat.Pusher, metrics DispatchRecorder, log *zap.Logger) *Dispatcher {
	return &Dispatcher{chat: c, pusher: pusher, metrics: metrics, log: log}
}

// Dispatch runs prompt -> stored user message -> history -> model -> stored
// assistant message -> push. Failures, panics included, are reported in the
// result and never propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, target chat.Target) (res DispatchResult) {
	log := d.log.With(zap.Stringer("target", target))
	defer func() {
		if r := recover(); r != nil {
			res = DispatchResult{Err: fmt.Errorf("dispatch panic: %v", r)}
		}
		d.record(target, res)
		if res.OK {
			log.Info("dispatch pushed", zap.Int("reply_len", len([]rune(res.Reply))))
		} else {
			log.Error("dispatch failed", zap.Error(res.Err))
		}
	}()

	if !target.Valid() {
		return DispatchResult{Err: errors.New("dispatch: missing or unknown target")}
	}
	if strings.TrimSpace(prompt) == "" {
		return DispatchResult{Err: errors.New("dispatch: empty prompt")}
	}

	source := target.Source()
	convID := source.ConversationID()
	if err := d.chat.conv.EnsureConversation(ctx, convID, source.Kind); err != nil {
		return DispatchResult{Err: err}
	}
	_, _, err := d.chat.conv.AppendUserMessage(ctx, models.NewUserMessage{
		ConvID:  convID,
		Content: prompt,
		Payload: map[string]any{"raw": map[string]any{"type": "manual", "source": source}},
	})
	if err != nil {
		return DispatchResult{Err: err}
	}

	reply, err := d.chat.complete(ctx, convID)
	if err != nil {
		return DispatchResult{Err: err}
	}
	text := chat.Truncate(reply, target.MaxLength())
	if err := d.pusher.Push(ctx, target, text); err != nil {
		return DispatchResult{Reply: text, Err: err}
	}
	return DispatchResult{OK: true, Reply: text}
}

func (d *Dispatcher) record(target chat.Target, res DispatchResult) {
	if d.metrics == nil {
		return
	}
	outcome := "ok"
	if !res.OK {
		outcome = "error"
	}
	platform := string(target.Platform)
	if platform == "" {
		platform = "unknown"
	}
	d.metrics.Dispatch(platform, outcome)
}
