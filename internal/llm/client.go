// Package llm talks to an OpenAI compatible chat completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/shaonote/starbot/internal/models"
)

// DefaultSystemPrompt introduces the assistant persona "Star".
const DefaultSystemPrompt = "你是友善、簡潔的助理，名字叫星星。用繁體中文回覆，每次不超過 500 字。"

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4.1-mini"

// ErrEmptyResponse is returned when the API answers without any choice.
var ErrEmptyResponse = errors.New("llm: empty response")

// Config configures a Client.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Temperature  float32
	SystemPrompt string
	Timeout      time.Duration
}

// Client sends conversation history to the model and returns its reply.
type Client struct {
	api    *openai.Client
	config Config
}

// New builds a Client, filling in defaults for empty fields.
func New(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{api: openai.NewClientWithConfig(clientConfig), config: cfg}
}

// Chat prepends the system prompt to history and asks for one completion.
func (c *Client) Chat(ctx context.Context, history []models.ChatTurn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    convertTurns(c.config.SystemPrompt, history),
		Temperature: c.config.Temperature,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func convertTurns(system string, history []models.ChatTurn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	for _, t := range history {
		var role string
		switch t.Role {
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		default:
			// tool rows carry no tool call id, so they are replayed as user text
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return out
}
