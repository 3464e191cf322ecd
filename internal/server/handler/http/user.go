package http

import (
	"context"
	"net/http"

	"github.com/shaonote/starbot/internal/service"
)

// SettingsService defines the preference operations used by UserHandler.
type SettingsService interface {
	Get(ctx context.Context, userID string) (map[string]any, error)
	Update(ctx context.Context, userID string, u service.SettingsUpdate) (map[string]any, error)
}

// UserHandler serves /note_tool/user.
type UserHandler struct {
	SettingsService SettingsService
}

// Settings returns the merged settings of the current user.
func (h *UserHandler) Settings(w http.ResponseWriter, r *http.Request) {
	s, err := h.SettingsService.Get(r.Context(), userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings applies a partial settings change.
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u service.SettingsUpdate
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.SettingsService.Update(r.Context(), userOf(r), u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
