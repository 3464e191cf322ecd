package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramAPI is the part of the Telegram bot API the bot uses.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramPusher sends messages to Telegram chats.
type TelegramPusher struct {
	api TelegramAPI
}

// NewTelegramPusher logs in with a bot token.
func NewTelegramPusher(token string) (*TelegramPusher, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return &TelegramPusher{api: bot}, nil
}

// NewTelegramPusherWithAPI wraps an existing API client.
func NewTelegramPusherWithAPI(api TelegramAPI) *TelegramPusher {
	return &TelegramPusher{api: api}
}

// Push sends text to a numeric chat id or an @channel username.
func (p *TelegramPusher) Push(_ context.Context, target Target, text string) error {
	text = Truncate(text, TelegramMaxLength)

	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(target.ID, "@") {
		msg = tgbotapi.NewMessageToChannel(target.ID, text)
	} else {
		id, err := strconv.ParseInt(target.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("telegram chat id %q: %w", target.ID, err)
		}
		msg = tgbotapi.NewMessage(id, text)
	}

	if _, err := p.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %s: %w", target.ID, err)
	}
	return nil
}
