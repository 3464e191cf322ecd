package http

import (
	"context"
	"net/http"

	"github.com/shaonote/starbot/internal/middleware"
	"github.com/shaonote/starbot/internal/models"
	"github.com/shaonote/starbot/internal/service"
)

// CardService defines the card operations used by CardHandler.
type CardService interface {
	List(ctx context.Context, userID string) ([]models.Card, error)
	Get(ctx context.Context, userID string, id int64) (*service.CardDetail, error)
	Create(ctx context.Context, userID, title, content string) (*models.Card, error)
	Update(ctx context.Context, userID string, id int64, title, content string) (*models.Card, error)
	Delete(ctx context.Context, userID string, id int64) error
}

// CardHandler serves /note_tool/card.
type CardHandler struct {
	CardService CardService
}

type cardRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// List returns the user's cards, most recently updated first.
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	cards, err := h.CardService.List(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if cards == nil {
		cards = []models.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}

// Get returns one card with its outgoing and incoming links.
func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.CardService.Get(r.Context(), middleware.GetUserIDFromContext(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Create stores a card and indexes its mentions.
func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.CardService.Create(r.Context(), middleware.GetUserIDFromContext(r.Context()), req.Title, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Update replaces title and content; the mention links are rebuilt.
func (h *CardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req cardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.CardService.Update(r.Context(), middleware.GetUserIDFromContext(r.Context()), id, req.Title, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete removes a card.
func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.CardService.Delete(r.Context(), middleware.GetUserIDFromContext(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
