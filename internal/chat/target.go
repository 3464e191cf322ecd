// Package chat delivers text to the chat platforms the bot talks to.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/shaonote/starbot/internal/models"
)

// Platform names a chat platform.
type Platform string

const (
	PlatformLine     Platform = "line"
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
)

// Per-platform message length limits, in characters.
const (
	LineMaxLength     = 1000
	DiscordMaxLength  = 2000
	TelegramMaxLength = 4096
)

// ErrNoPusher is returned when no pusher is registered for a target's platform.
var ErrNoPusher = errors.New("no pusher registered for platform")

// Target is a chat that can receive pushed messages. Build one with
// LineGroup, DiscordChannel or TelegramChat.
type Target struct {
	Platform Platform `json:"platform" yaml:"platform"`
	ID       string   `json:"id" yaml:"id"`
}

// LineGroup targets a LINE group.
func LineGroup(id string) Target { return Target{Platform: PlatformLine, ID: id} }

// DiscordChannel targets a Discord guild channel.
func DiscordChannel(id string) Target { return Target{Platform: PlatformDiscord, ID: id} }

// TelegramChat targets a Telegram chat or @channel.
func TelegramChat(id string) Target { return Target{Platform: PlatformTelegram, ID: id} }

// Valid reports whether the target names a known platform and an id.
func (t Target) Valid() bool {
	if t.ID == "" {
		return false
	}
	switch t.Platform {
	case PlatformLine, PlatformDiscord, PlatformTelegram:
		return true
	}
	return false
}

// MaxLength is the longest text the platform accepts in one message.
func (t Target) MaxLength() int {
	switch t.Platform {
	case PlatformDiscord:
		return DiscordMaxLength
	case PlatformTelegram:
		return TelegramMaxLength
	}
	return LineMaxLength
}

// Source is the conversation source messages pushed to t are stored under.
func (t Target) Source() models.ChatSource {
	switch t.Platform {
	case PlatformDiscord:
		return models.ChatSource{Kind: models.ChatDiscord, ID: t.ID}
	case PlatformTelegram:
		return models.ChatSource{Kind: models.ChatTelegram, ID: t.ID}
	case PlatformLine:
		return models.ChatSource{Kind: models.ChatGroup, ID: t.ID}
	}
	return models.ChatSource{}
}

func (t Target) String() string {
	return string(t.Platform) + ":" + t.ID
}

// Truncate cuts text to at most n characters on rune boundaries.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}

// Pusher sends one text message to a target of its platform.
type Pusher interface {
	Push(ctx context.Context, target Target, text string) error
}

// PusherFunc adapts a function to Pusher.
type PusherFunc func(ctx context.Context, target Target, text string) error

// Push calls f.
func (f PusherFunc) Push(ctx context.Context, target Target, text string) error {
	return f(ctx, target, text)
}

// Router picks the pusher registered for a target's platform and truncates
// text to that platform's limit.
type Router struct {
	mu      sync.RWMutex
	pushers map[Platform]Pusher
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{pushers: make(map[Platform]Pusher)}
}

// Register sets the pusher for p, replacing any previous one.
func (r *Router) Register(p Platform, pusher Pusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushers[p] = pusher
}

// Has reports whether a pusher is registered for p.
func (r *Router) Has(p Platform) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pushers[p]
	return ok
}

// Push delivers text to target.
func (r *Router) Push(ctx context.Context, target Target, text string) error {
	r.mu.RLock()
	pusher, ok := r.pushers[target.Platform]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoPusher, target.Platform)
	}
	return pusher.Push(ctx, target, Truncate(text, target.MaxLength()))
}
