package chat

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// LineAPI is the part of the LINE messaging API the bot uses.
type LineAPI interface {
	PushMessage(req *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
}

// LinePusher pushes and replies through the LINE messaging API.
type LinePusher struct {
	api LineAPI
}

// NewLinePusher builds a pusher from a channel access token.
func NewLinePusher(channelToken string) (*LinePusher, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("line messaging api: %w", err)
	}
	return &LinePusher{api: api}, nil
}

// NewLinePusherWithAPI wraps an existing API client.
func NewLinePusherWithAPI(api LineAPI) *LinePusher {
	return &LinePusher{api: api}
}

// Push sends text to a LINE user, group or room id.
func (p *LinePusher) Push(_ context.Context, target Target, text string) error {
	_, err := p.api.PushMessage(&messaging_api.PushMessageRequest{
		To:       target.ID,
		Messages: []messaging_api.MessageInterface{messaging_api.TextMessage{Text: Truncate(text, LineMaxLength)}},
	}, "")
	if err != nil {
		return fmt.Errorf("line push to %s: %w", target.ID, err)
	}
	return nil
}

// Reply answers a webhook event through its reply token.
func (p *LinePusher) Reply(_ context.Context, replyToken, text string) error {
	_, err := p.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{messaging_api.TextMessage{Text: Truncate(text, LineMaxLength)}},
	})
	if err != nil {
		return fmt.Errorf("line reply: %w", err)
	}
	return nil
}
