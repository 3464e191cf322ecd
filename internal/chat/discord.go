package chat

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/shaonote/starbot/internal/models"
)

// Responder stores inbound messages and produces replies.
type Responder interface {
	Record(ctx context.Context, in models.Inbound) (bool, error)
	Reply(ctx context.Context, in models.Inbound) (string, bool, error)
}

type discordAPI interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordBot pushes to Discord channels and, once started, listens to
// guild messages. Every message is recorded; the bot answers only when
// mentioned.
type DiscordBot struct {
	session   *discordgo.Session
	api       discordAPI
	responder Responder
	log       *zap.Logger
}

// NewDiscordBot prepares a gateway session for a bot token. Nothing is
// opened until Run is called.
func NewDiscordBot(token string, responder Responder, log *zap.Logger) (*DiscordBot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	b := &DiscordBot{session: s, api: s, responder: responder, log: log}
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.log.Info("discord bot online", zap.String("user", r.User.Username))
	})
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		var self string
		if s.State != nil && s.State.User != nil {
			self = s.State.User.ID
		}
		b.handle(context.Background(), self, m.Message)
	})
	return b, nil
}

// Push sends text to a channel id.
func (b *DiscordBot) Push(_ context.Context, target Target, text string) error {
	if _, err := b.api.ChannelMessageSend(target.ID, Truncate(text, DiscordMaxLength)); err != nil {
		return fmt.Errorf("discord send to %s: %w", target.ID, err)
	}
	return nil
}

// Run opens the gateway and blocks until ctx is done.
func (b *DiscordBot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	<-ctx.Done()
	return b.session.Close()
}

func (b *DiscordBot) handle(ctx context.Context, selfID string, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	log := b.log.With(
		zap.String("channel", m.ChannelID),
		zap.String("author", m.Author.ID),
		zap.String("message_id", m.ID),
	)

	in := models.Inbound{
		Source:     models.ChatSource{Kind: models.ChatDiscord, ID: m.ChannelID},
		ExternalID: m.ID,
		SenderID:   m.Author.ID,
		Text:       m.Content,
	}

	if !mentions(m, selfID) {
		if _, err := b.responder.Record(ctx, in); err != nil {
			log.Error("record discord message", zap.Error(err))
		}
		return
	}

	reply, ok, err := b.responder.Reply(ctx, in)
	if err != nil {
		log.Error("discord reply", zap.Error(err))
		return
	}
	if !ok || reply == "" {
		return
	}
	if _, err := b.api.ChannelMessageSendReply(m.ChannelID, Truncate(reply, DiscordMaxLength), m.Reference()); err != nil {
		log.Error("send discord reply", zap.Error(err))
	}
}

func mentions(m *discordgo.Message, selfID string) bool {
	if selfID == "" {
		return false
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			return true
		}
	}
	return false
}
