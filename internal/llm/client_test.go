package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaonote/starbot/internal/models"
)

func newTestServer(t *testing.T, choices []string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))

		resp := openai.ChatCompletionResponse{ID: "cmpl-1", Object: "chat.completion"}
		for i, c := range choices {
			resp.Choices = append(resp.Choices, openai.ChatCompletionChoice{
				Index:   i,
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChat(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, []string{"  hello there \n"}, &seen)
	c := New(Config{APIKey: "k", BaseURL: srv.URL + "/v1", Temperature: 0.6})

	reply, err := c.Chat(context.Background(), []models.ChatTurn{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hey"},
		{Role: models.RoleUser, Content: "how are you"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)

	assert.Equal(t, DefaultModel, seen.Model)
	require.Len(t, seen.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, seen.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, seen.Messages[2].Role)
	assert.Equal(t, "how are you", seen.Messages[3].Content)
}

func TestChat_NoChoices(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, nil, &seen)
	c := New(Config{BaseURL: srv.URL + "/v1", SystemPrompt: "be brief", Model: "m"})

	_, err := c.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, "m", seen.Model)
	assert.Equal(t, "be brief", seen.Messages[0].Content)
}

func TestChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1"})
	_, err := c.Chat(context.Background(), []models.ChatTurn{{Role: models.RoleUser, Content: "x"}})
	assert.Error(t, err)
}
