// Package main starts the starbot server: the note tool API, the LINE
// webhook, the Discord gateway session and the reminder scheduler.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shaonote/starbot/internal/chat"
	"github.com/shaonote/starbot/internal/config"
	"github.com/shaonote/starbot/internal/db"
	"github.com/shaonote/starbot/internal/llm"
	"github.com/shaonote/starbot/internal/logger"
	"github.com/shaonote/starbot/internal/metrics"
	"github.com/shaonote/starbot/internal/middleware"
	"github.com/shaonote/starbot/internal/repository"
	"github.com/shaonote/starbot/internal/scheduler"
	"github.com/shaonote/starbot/internal/server/handler/http"
	"github.com/shaonote/starbot/internal/service"
	"github.com/shaonote/starbot/internal/token"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	if err := options.Validate(); err != nil {
		zapLogger.Fatal("invalid configuration", zap.Error(err))
	}
	loc, err := time.LoadLocation(options.TimeZone)
	if err != nil {
		zapLogger.Fatal("invalid time zone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer postgresDB.Close()

	var m *metrics.Metrics
	if options.MetricsEnabled {
		m = metrics.New()
	}

	// Repositories.
	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	cardRepo := repository.NewPostgresCardRepository(postgresDB)
	boardRepo := repository.NewPostgresBoardRepository(postgresDB)
	shareRepo := repository.NewPostgresShareRepository(postgresDB)
	convRepo := repository.NewPostgresConversationRepository(postgresDB)

	// Services.
	tokens := token.NewManager(options.JWTSecret, token.TTLs{
		Access:  options.AccessTTL,
		Refresh: options.RefreshTTL,
		MFA:     options.PendingTTL,
		Unlock:  options.UnlockTTL,
	})
	authService := service.NewAuthService(authRepo, tokens, options.TOTPIssuer)
	settingsService := service.NewSettingsService(authRepo)
	cardService := service.NewCardService(cardRepo)
	boardService := service.NewBoardService(boardRepo)
	shareService := service.NewShareService(shareRepo, cardRepo, boardRepo, tokens)

	model := llm.New(llm.Config{
		APIKey:       options.OpenAIKey,
		BaseURL:      options.OpenAIBaseURL,
		Model:        options.OpenAIModel,
		Temperature:  options.Temperature,
		SystemPrompt: options.SystemPrompt,
	})
	chatService := service.NewChatService(convRepo, model, options.HistoryLimit)

	// Chat platforms, each only when configured.
	pushers := chat.NewRouter()
	var line *chat.LinePusher
	if options.LineChannelToken != "" {
		line, err = chat.NewLinePusher(options.LineChannelToken)
		if err != nil {
			zapLogger.Fatal("cannot init LINE client", zap.Error(err))
		}
		pushers.Register(chat.PlatformLine, line)
	}
	var discord *chat.DiscordBot
	if options.DiscordToken != "" {
		discord, err = chat.NewDiscordBot(options.DiscordToken, chatService, zapLogger.Named("discord"))
		if err != nil {
			zapLogger.Fatal("cannot init Discord session", zap.Error(err))
		}
		pushers.Register(chat.PlatformDiscord, discord)
	}
	if options.TelegramToken != "" {
		tg, err := chat.NewTelegramPusher(options.TelegramToken)
		if err != nil {
			zapLogger.Fatal("cannot init Telegram bot", zap.Error(err))
		}
		pushers.Register(chat.PlatformTelegram, tg)
	}

	dispatcher := service.NewDispatcher(chatService, pushers, m, zapLogger.Named("dispatch"))
	sched := scheduler.New(loc, dispatcher, zapLogger.Named("scheduler"))
	if n, err := sched.LoadFile(options.ScheduleFile); err != nil {
		zapLogger.Warn("reminder table not loaded", zap.String("file", options.ScheduleFile), zap.Error(err))
	} else {
		zapLogger.Info("reminders registered", zap.Int("jobs", n))
	}

	// HTTP handlers.
	cookies := http.Cookies{Secure: options.CookieSecure}
	handlers := http.Handlers{
		Auth:          &http.AuthHandler{AuthService: authService, Cookies: cookies},
		Card:          &http.CardHandler{CardService: cardService},
		Board:         &http.BoardHandler{BoardService: boardService},
		Share:         &http.ShareHandler{ShareService: shareService, Cookies: cookies},
		User:          &http.UserHandler{SettingsService: settingsService},
		Verifier:      authService,
		LoginLimiter:  middleware.NewRateLimiter(options.LoginRate, options.RateBurst),
		UnlockLimiter: middleware.NewRateLimiter(options.UnlockRate, options.RateBurst),

		TrustProxyHeaders: options.TrustProxyHeaders,
	}
	if line != nil && options.LineChannelSecret != "" {
		handlers.Webhook = &http.WebhookHandler{
			ChannelSecret: options.LineChannelSecret,
			ChatService:   chatService,
			Replier:       line,
			Metrics:       m,
			Logger:        zapLogger.Named("webhook"),
		}
	}
	if m != nil {
		handlers.Metrics = m.Handler()
		handlers.Observer = m
	}

	router := http.NewRouter(handlers, zapLogger)
	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if discord != nil {
		g.Go(func() error {
			return discord.Run(gctx)
		})
	}

	db.StartShareLinkCleaner(gctx, postgresDB, options.CleanInterval, options.ShareRetain, zapLogger.Named("cleaner"))

	if err := g.Wait(); err != nil {
		zapLogger.Error("server stopped with error", zap.Error(err))
		return
	}
	zapLogger.Info("server stopped")
}
