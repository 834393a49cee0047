package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/ambermind/backend/internal/config"
	"github.com/zhouzirui/ambermind/backend/internal/handler"
	"github.com/zhouzirui/ambermind/backend/internal/middleware"
	"github.com/zhouzirui/ambermind/backend/internal/model/persona"
	"github.com/zhouzirui/ambermind/backend/internal/service/ai"
	"github.com/zhouzirui/ambermind/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	logger := newLogger(level)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded, continuing with system environment variables only", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if parsed, err := zap.ParseAtomicLevel(cfg.LogLevel); err != nil {
		logger.Warn("invalid LOG_LEVEL, keeping info", zap.String("value", cfg.LogLevel))
	} else {
		level.SetLevel(parsed.Level())
	}

	completer := newCompleter(ctx, cfg.Completion, logger.Named("ai"))

	store := chat.NewMemoryStore(cfg.Session.TTL, logger.Named("session"))
	go store.Run(ctx, cfg.Session.SweepEvery)

	assistant := persona.Default().WithDirective(cfg.Chat.SystemPrompt)
	manager := chat.NewManager(store, completer, chat.Options{
		SystemPrompt:       ai.BuildSystemPrompt(assistant),
		RejectMismatchedID: cfg.Chat.RejectMismatchedID,
		Timeout:            cfg.Completion.Timeout,
		MaxTokens:          chat.DefaultMaxTokens,
	}, logger.Named("chat"))

	sessions := middleware.NewSessions(middleware.SessionOptions{
		CookieName: cfg.Session.CookieName,
		Secret:     cfg.Session.Secret,
		Secure:     cfg.Session.SecureCookie,
		MaxAge:     cfg.Session.TTL,
	}, logger.Named("session"))

	router := handler.NewRouter(manager, sessions, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(level zap.AtomicLevel) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// newCompleter builds the completion handle once. Missing credentials do not
// stop the server: every turn fails with a configuration error until fixed.
func newCompleter(ctx context.Context, cfg config.CompletionConfig, logger *zap.Logger) ai.Completer {
	if !cfg.Enabled() {
		logger.Warn("completion credential not configured, chat turns will fail until COMPLETION_API_KEY and COMPLETION_MODEL are set",
			zap.String("provider", cfg.Provider))
		return ai.Unconfigured{Reason: "set COMPLETION_API_KEY and COMPLETION_MODEL"}
	}

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			logger.Warn("failed to create Ark chat model", zap.Error(err))
			return ai.Unconfigured{Reason: err.Error()}
		}
		completer, err := ai.NewChainCompleter(ctx, chatModel, logger)
		if err != nil {
			logger.Warn("failed to build chat chain", zap.Error(err))
			return ai.Unconfigured{Reason: err.Error()}
		}
		logger.Info("completion service initialized", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
		return completer
	default:
		logger.Info("completion service initialized", zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
		return ai.NewOpenAIClient(cfg.BaseURL, cfg.APIKey, cfg.Model, &http.Client{Timeout: cfg.Timeout}, logger)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("AmberMind backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
