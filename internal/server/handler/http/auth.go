// Package http provides the HTTP handlers of the note tool, the chat
// webhook and the routing that ties them together.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shaonote/starbot/internal/middleware"
	"github.com/shaonote/starbot/internal/models"
	"github.com/shaonote/starbot/internal/service"
)

// Cookie names and paths.
const (
	accessCookie  = middleware.AccessCookie
	refreshCookie = "refresh_token"
	refreshPath   = "/note_tool/auth"
)

// AuthService defines the authentication operations required by the HTTP
// handlers.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	SetupTwoFactor(ctx context.Context, userID string) (*service.TwoFactorSetup, error)
	VerifyTwoFactor(ctx context.Context, in service.TwoFactorVerify) (*service.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*service.Session, error)
	Me(ctx context.Context, userID string) (*models.User, error)
}

// Cookies controls the attributes of every cookie the server sets.
type Cookies struct {
	// Secure marks cookies Secure with SameSite=None; otherwise SameSite=Lax.
	Secure bool
}

func (c Cookies) set(w http.ResponseWriter, name, value, path string, expires time.Time) {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.Secure {
		ck.SameSite = http.SameSiteNoneMode
	}
	if ck.MaxAge <= 0 {
		ck.MaxAge = 1
	}
	http.SetCookie(w, ck)
}

func (c Cookies) clear(w http.ResponseWriter, name, path string) {
	ck := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if c.Secure {
		ck.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, ck)
}

// AuthHandler handles registration, login, two-factor and session refresh.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	Cookies     Cookies
}

type registerRequest struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	PendingToken string `json:"pendingToken"`
	Token        string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	User        *models.User `json:"user,omitempty"`
}

type challengeResponse struct {
	Require2FA   bool   `json:"require2FA"`
	UserID       string `json:"userId"`
	PendingToken string `json:"pendingToken"`
}

func (h *AuthHandler) startSession(w http.ResponseWriter, s *service.Session) {
	h.Cookies.set(w, accessCookie, s.AccessToken, "/", s.AccessExpires)
	h.Cookies.set(w, refreshCookie, s.RefreshToken, refreshPath, s.RefreshExpires)
	writeJSON(w, http.StatusOK, sessionResponse{AccessToken: s.AccessToken, ExpiresAt: s.AccessExpires, User: s.User})
}

// Register creates an account. A taken email answers 409.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.AuthService.Register(r.Context(), service.RegisterInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login checks credentials. Accounts with two-factor enabled get a pending
// challenge instead of cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, models.Invalid("email", "email and password are required"))
		return
	}
	res, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Require2FA {
		writeJSON(w, http.StatusOK, challengeResponse{Require2FA: true, UserID: res.UserID, PendingToken: res.PendingToken})
		return
	}
	h.startSession(w, res.Session)
}

// SetupTwoFactor enrolls the current user and returns the QR code.
func (h *AuthHandler) SetupTwoFactor(w http.ResponseWriter, r *http.Request) {
	setup, err := h.AuthService.SetupTwoFactor(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

// VerifyTwoFactor completes a pending login or an enrollment.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Token == "" {
		writeError(w, models.Invalid("token", "code is required"))
		return
	}
	s, err := h.AuthService.VerifyTwoFactor(r.Context(), service.TwoFactorVerify{
		PendingToken:  req.PendingToken,
		SessionUserID: middleware.GetUserIDFromContext(r.Context()),
		Code:          req.Token,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.startSession(w, s)
}

// Refresh rotates the token pair. The refresh token comes from its cookie
// or the JSON body; a rejected cookie falls back to the body token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var candidates []string
	if c, err := r.Cookie(refreshCookie); err == nil && c.Value != "" {
		candidates = append(candidates, c.Value)
	}
	if req.RefreshToken != "" && (len(candidates) == 0 || candidates[0] != req.RefreshToken) {
		candidates = append(candidates, req.RefreshToken)
	}
	if len(candidates) == 0 {
		writeError(w, models.ErrUnauthorized)
		return
	}

	var (
		s   *service.Session
		err error
	)
	for _, raw := range candidates {
		s, err = h.AuthService.Refresh(r.Context(), raw)
		if !errors.Is(err, models.ErrUnauthorized) {
			break
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.startSession(w, s)
}

// Logout clears both session cookies. Issued tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.Cookies.clear(w, accessCookie, "/")
	h.Cookies.clear(w, refreshCookie, refreshPath)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the current user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.AuthService.Me(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
