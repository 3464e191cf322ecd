package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/shaonote/starbot/internal/middleware"
	"github.com/shaonote/starbot/internal/models"
)

// Handlers groups everything NewRouter mounts. Webhook and Metrics are
// optional.
type Handlers struct {
	Auth    *AuthHandler
	Card    *CardHandler
	Board   *BoardHandler
	Share   *ShareHandler
	User    *UserHandler
	Webhook *WebhookHandler
	Metrics http.Handler

	// Verifier authenticates access tokens for protected routes.
	Verifier middleware.TokenVerifier
	// LoginLimiter throttles login per client IP.
	LoginLimiter *middleware.RateLimiter
	// UnlockLimiter throttles share unlock attempts per token.
	UnlockLimiter *middleware.RateLimiter
	// Observer additionally records every request, usually the metrics.
	Observer middleware.HTTPObserver
	// TrustProxyHeaders lets X-Forwarded-For / X-Real-IP replace the peer
	// address. Enable it only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// NewRouter builds the HTTP API.
//
// Routes:
//
//	POST /webhook                       LINE callback, always 200
//	GET  /metrics                       Prometheus exposition
//	/note_tool/auth                     register, login, 2fa, refresh, logout, me
//	/note_tool/card                     cards and their share links
//	/note_tool/board                    boards, folders, placements, regions, share links
//	/note_tool/user/settings            preferences
//
// The share/{token} routes under card and board are public.
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	if h.TrustProxyHeaders {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger, h.Observer))

	if h.Webhook != nil {
		r.Post("/webhook", h.Webhook.Line)
	}
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	auth := middleware.RequireAuth(h.Verifier)

	r.Route("/note_tool", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Auth.Register)
			r.With(limit(h.LoginLimiter, middleware.ClientIP)).Post("/login", h.Auth.Login)
			r.With(middleware.OptionalAuth(h.Verifier)).Post("/2fa/verify", h.Auth.VerifyTwoFactor)
			r.Post("/refresh", h.Auth.Refresh)
			r.Post("/logout", h.Auth.Logout)
			r.With(auth).Post("/2fa/setup", h.Auth.SetupTwoFactor)
			r.With(auth).Get("/me", h.Auth.Me)
		})

		r.Route("/card", func(r chi.Router) {
			mountShared(r, h, models.ShareCard)
			r.Put("/share/{token}", h.Share.EditSharedCard)
			r.Get("/share/{token}", h.Share.SharedCard)

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Get("/", h.Card.List)
				r.Post("/", h.Card.Create)
				r.Get("/{id}", h.Card.Get)
				r.Put("/{id}", h.Card.Update)
				r.Delete("/{id}", h.Card.Delete)
				mountOwner(r, h.Share, models.ShareCard, "id")
			})
		})

		r.Route("/board", func(r chi.Router) {
			mountShared(r, h, models.ShareBoard)
			r.Get("/share/{token}", h.Share.SharedBoard)
			r.Put("/share/{token}/cards/{cardId}", h.Share.MoveSharedBoardCard)

			r.Group(func(r chi.Router) {
				r.Use(auth)
				r.Get("/folders", h.Board.ListFolders)
				r.Post("/folders", h.Board.CreateFolder)
				r.Put("/folders/order", h.Board.ReorderFolders)
				r.Put("/folders/{folderId}", h.Board.RenameFolder)
				r.Delete("/folders/{folderId}", h.Board.DeleteFolder)

				r.Get("/", h.Board.List)
				r.Post("/", h.Board.Create)
				r.Get("/{boardId}", h.Board.Get)
				r.Put("/{boardId}", h.Board.Update)
				r.Delete("/{boardId}", h.Board.Delete)

				r.Post("/{boardId}/cards", h.Board.CreateCard)
				r.Post("/{boardId}/cards/{cardId}", h.Board.AddCard)
				r.Put("/{boardId}/cards/{cardId}", h.Board.UpdateLayout)
				r.Delete("/{boardId}/cards/{cardId}", h.Board.RemoveCard)

				r.Get("/{boardId}/regions", h.Board.ListRegions)
				r.Post("/{boardId}/regions", h.Board.CreateRegion)
				r.Put("/{boardId}/regions/{regionId}", h.Board.UpdateRegion)
				r.Delete("/{boardId}/regions/{regionId}", h.Board.DeleteRegion)

				mountOwner(r, h.Share, models.ShareBoard, "boardId")
			})
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(auth)
			r.Get("/settings", h.User.Settings)
			r.Put("/settings", h.User.UpdateSettings)
		})
	})

	return r
}

func mountShared(r chi.Router, h Handlers, res models.ShareResource) {
	r.Get("/share/{token}/meta", h.Share.Meta(res))
	r.With(limit(h.UnlockLimiter, func(r *http.Request) string {
		return string(res) + ":" + chi.URLParam(r, "token")
	})).Post("/share/{token}/unlock", h.Share.Unlock(res))
}

func mountOwner(r chi.Router, s *ShareHandler, res models.ShareResource, param string) {
	r.Post("/{"+param+"}/share", s.CreateLink(res, param))
	r.Get("/{"+param+"}/share", s.ListLinks(res, param))
	r.Delete("/{"+param+"}/share/{linkId}", s.RevokeLink(res, param))
}

func limit(l *middleware.RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Limit(key)
}
