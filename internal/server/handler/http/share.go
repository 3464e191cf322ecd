package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shaonote/starbot/internal/models"
	"github.com/shaonote/starbot/internal/service"
)

// unlockHeader carries an unlock grant for clients that do not keep cookies.
const unlockHeader = "X-Share-Unlock"

// unlockPath scopes unlock cookies to the note tool routes.
const unlockPath = "/note_tool"

// ShareService defines the share link operations used by ShareHandler.
type ShareService interface {
	Create(ctx context.Context, userID string, res models.ShareResource, resourceID int64, in service.CreateShareInput) (*models.ShareLink, error)
	List(ctx context.Context, userID string, res models.ShareResource, resourceID int64) ([]models.ShareLink, error)
	Revoke(ctx context.Context, userID string, res models.ShareResource, resourceID, linkID int64) (*models.ShareLink, error)
	Meta(ctx context.Context, res models.ShareResource, tok, grant string) (*service.ShareMeta, error)
	Unlock(ctx context.Context, res models.ShareResource, tok, password string) (string, time.Time, error)
	Card(ctx context.Context, tok, grant string) (*service.SharedCard, error)
	Board(ctx context.Context, tok, grant string) (*service.SharedBoard, error)
	EditCard(ctx context.Context, tok, grant, title, content string) (*models.Card, error)
	MoveBoardCard(ctx context.Context, tok, grant string, cardID int64, l models.Layout) (*models.BoardCard, error)
}

// ShareHandler serves owner link management and the anonymous share routes.
type ShareHandler struct {
	ShareService ShareService
	Cookies      Cookies
}

type unlockRequest struct {
	Password string `json:"password"`
}

// UnlockCookieName derives the per-link cookie name. Characters outside
// [A-Za-z0-9_-] become underscores.
func UnlockCookieName(tok string) string {
	var b strings.Builder
	b.WriteString("share_unlock_")
	for _, c := range tok {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// grantsFor lists the unlock grants a request carries, cookie first. The
// list is never empty so an anonymous call still reaches the service.
func grantsFor(r *http.Request, tok string) []string {
	var out []string
	if c, err := r.Cookie(UnlockCookieName(tok)); err == nil && c.Value != "" {
		out = append(out, c.Value)
	}
	if h := r.Header.Get(unlockHeader); h != "" && (len(out) == 0 || out[0] != h) {
		out = append(out, h)
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

// withGrant calls fn with each grant until one gets past the password gate.
func withGrant[T any](r *http.Request, tok string, fn func(grant string) (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for _, g := range grantsFor(r, tok) {
		v, err = fn(g)
		if !errors.Is(err, models.ErrPasswordRequired) {
			return v, err
		}
	}
	return v, err
}

// CreateLink issues a link for the resource named by the idParam path parameter.
func (h *ShareHandler) CreateLink(res models.ShareResource, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, param)
		if err != nil {
			writeError(w, err)
			return
		}
		var in service.CreateShareInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, err)
			return
		}
		l, err := h.ShareService.Create(r.Context(), userOf(r), res, id, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, l)
	}
}

// ListLinks returns the active links of a resource.
func (h *ShareHandler) ListLinks(res models.ShareResource, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, param)
		if err != nil {
			writeError(w, err)
			return
		}
		ls, err := h.ShareService.List(r.Context(), userOf(r), res, id)
		if err != nil {
			writeError(w, err)
			return
		}
		if ls == nil {
			ls = []models.ShareLink{}
		}
		writeJSON(w, http.StatusOK, ls)
	}
}

// RevokeLink disables a link for good.
func (h *ShareHandler) RevokeLink(res models.ShareResource, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, param)
		if err != nil {
			writeError(w, err)
			return
		}
		linkID, err := idParam(r, "linkId")
		if err != nil {
			writeError(w, err)
			return
		}
		l, err := h.ShareService.Revoke(r.Context(), userOf(r), res, id, linkID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// Meta describes a link to an anonymous visitor.
func (h *ShareHandler) Meta(res models.ShareResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := chi.URLParam(r, "token")
		var (
			m   *service.ShareMeta
			err error
		)
		for _, g := range grantsFor(r, tok) {
			m, err = h.ShareService.Meta(r.Context(), res, tok, g)
			if err != nil || m.Unlocked {
				break
			}
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// Unlock checks the link password and sets the unlock cookie.
func (h *ShareHandler) Unlock(res models.ShareResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := chi.URLParam(r, "token")
		var req unlockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		grant, exp, err := h.ShareService.Unlock(r.Context(), res, tok, req.Password)
		if err != nil {
			writeError(w, err)
			return
		}
		h.Cookies.set(w, UnlockCookieName(tok), grant, unlockPath, exp)
		writeJSON(w, http.StatusOK, map[string]any{"unlocked": true, "expiresAt": exp, "grant": grant})
	}
}

// SharedCard serves the card behind a card link.
func (h *ShareHandler) SharedCard(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	c, err := withGrant(r, tok, func(g string) (*service.SharedCard, error) {
		return h.ShareService.Card(r.Context(), tok, g)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// EditSharedCard updates the card behind an edit link.
func (h *ShareHandler) EditSharedCard(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	var req cardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := withGrant(r, tok, func(g string) (*models.Card, error) {
		return h.ShareService.EditCard(r.Context(), tok, g, req.Title, req.Content)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SharedBoard serves the board behind a board link.
func (h *ShareHandler) SharedBoard(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	b, err := withGrant(r, tok, func(g string) (*service.SharedBoard, error) {
		return h.ShareService.Board(r.Context(), tok, g)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// MoveSharedBoardCard changes a card layout through an edit link.
func (h *ShareHandler) MoveSharedBoardCard(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	cardID, err := idParam(r, "cardId")
	if err != nil {
		writeError(w, err)
		return
	}
	var l models.Layout
	if err := decodeJSON(r, &l); err != nil {
		writeError(w, err)
		return
	}
	bc, err := withGrant(r, tok, func(g string) (*models.BoardCard, error) {
		return h.ShareService.MoveBoardCard(r.Context(), tok, g, cardID, l)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bc)
}
