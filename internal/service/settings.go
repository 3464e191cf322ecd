package service

import (
	"context"
	"math"

	"github.com/shaonote/starbot/internal/models"
)

// SettingsRepository reads and merges the per-user settings object.
type SettingsRepository interface {
	GetSettings(ctx context.Context, userID string) (map[string]any, error)
	MergeSettings(ctx context.Context, userID string, patch map[string]any) (map[string]any, error)
}

// SettingsUpdate is a partial settings change. Nil fields are left alone.
type SettingsUpdate struct {
	CardOpenMode      *string  `json:"cardOpenMode"`
	CardPreviewLength *models.Number `json:"cardPreviewLength"`
	Theme             *string  `json:"theme"`
}

// DefaultSettings returns the settings every user starts with.
func DefaultSettings() map[string]any {
	return map[string]any{
		"cardOpenMode":      "modal",
		"cardPreviewLength": 120,
		"theme":             "light",
	}
}

// SettingsService validates and persists user preferences.
type SettingsService struct {
	repo SettingsRepository
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(repo SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

// Get returns the stored settings layered over the defaults.
func (s *SettingsService) Get(ctx context.Context, userID string) (map[string]any, error) {
	stored, err := s.repo.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return withDefaults(stored), nil
}

// Update validates u and merges it into the stored settings.
func (s *SettingsService) Update(ctx context.Context, userID string, u SettingsUpdate) (map[string]any, error) {
	patch := map[string]any{}
	if u.CardOpenMode != nil {
		if *u.CardOpenMode != "modal" && *u.CardOpenMode != "sidepanel" {
			return nil, models.Invalid("cardOpenMode", "must be modal or sidepanel")
		}
		patch["cardOpenMode"] = *u.CardOpenMode
	}
	if u.CardPreviewLength != nil {
		n := float64(*u.CardPreviewLength)
		if math.IsNaN(n) || n < 40 || n > 500 {
			return nil, models.Invalid("cardPreviewLength", "must be a number between 40 and 500")
		}
		patch["cardPreviewLength"] = n
	}
	if u.Theme != nil {
		if *u.Theme != "light" {
			return nil, models.Invalid("theme", "only light is supported")
		}
		patch["theme"] = "light"
	}
	if len(patch) == 0 {
		return nil, models.Invalid("settings", "nothing to update")
	}

	merged, err := s.repo.MergeSettings(ctx, userID, patch)
	if err != nil {
		return nil, err
	}
	return withDefaults(merged), nil
}

func withDefaults(stored map[string]any) map[string]any {
	out := DefaultSettings()
	for k, v := range stored {
		out[k] = v
	}
	return out
}
