package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-companion/backend/internal/analysis/eom"
	"github.com/zhouzirui/z-companion/backend/internal/config"
	"github.com/zhouzirui/z-companion/backend/internal/handler"
	"github.com/zhouzirui/z-companion/backend/internal/model/persona"
	"github.com/zhouzirui/z-companion/backend/internal/pacing"
	"github.com/zhouzirui/z-companion/backend/internal/service/ai"
	"github.com/zhouzirui/z-companion/backend/internal/service/backend"
	"github.com/zhouzirui/z-companion/backend/internal/service/chat"
	"github.com/zhouzirui/z-companion/backend/internal/service/playback"
	"github.com/zhouzirui/z-companion/backend/internal/service/sequencer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.Log)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using system environment only", "reason", envErr)
	}

	table := pacing.DefaultTable()
	if cfg.Pacing.TablePath != "" {
		table, err = pacing.LoadTable(cfg.Pacing.TablePath)
		if err != nil {
			logger.Error("failed to load pacing table", "path", cfg.Pacing.TablePath, "error", err)
			os.Exit(1)
		}
	}
	policy := pacing.DefaultPolicy()
	policy.Table = table

	playbackSvc := playback.NewService(playback.Config{
		Parser: eom.NewParser(eom.Defaults{
			PauseMs:    cfg.Pacing.DefaultPauseMs,
			MaxPauseMs: cfg.Pacing.MaxPauseMs,
		}),
		Sequencer: sequencer.Config{
			DefaultDelay:   time.Duration(cfg.Pacing.DefaultPauseMs) * time.Millisecond,
			InterPartPause: time.Duration(cfg.Pacing.InterPartPauseMs) * time.Millisecond,
			Policy:         policy,
		},
		DefaultIntensity: cfg.Pacing.DefaultIntensity,
		Logger:           logger,
	})

	// Initialize persona store and chat service
	personaStore := persona.NewMemoryStore(persona.Seed())
	chatService := chat.NewService()

	replier := newReplier(ctx, cfg, personaStore, logger)
	conversation := playback.NewConversation(chatService, personaStore, replier, playbackSvc, logger)

	router := handler.NewRouter(personaStore, chatService, conversation, playbackSvc)

	startServer(ctx, cfg.Server, router, logger)
}

// newReplier prefers the external chat backend, then the local model. With
// neither configured every turn plays the fallback reply.
func newReplier(ctx context.Context, cfg *config.Config, personas persona.Store, logger *slog.Logger) backend.Replier {
	if cfg.Backend.Enabled() {
		client, err := backend.NewClient(backend.Config{
			URL:            cfg.Backend.URL,
			Timeout:        cfg.Backend.Timeout,
			MaxAttempts:    cfg.Backend.MaxAttempts,
			InitialBackoff: cfg.Backend.InitialBackoff,
			Logger:         logger,
		})
		if err == nil {
			logger.Info("chat backend configured", "url", cfg.Backend.URL)
			return client
		}
		logger.Warn("invalid chat backend configuration", "error", err)
	}

	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, personas, cfg.AI)
		if err == nil {
			logger.Info("AI service initialized", "model", cfg.AI.Model)
			return aiService
		}
		logger.Warn("failed to initialize AI service, 请检查 Ark 模型相关环境变量", "error", err)
	}

	logger.Warn("no reply source configured, every turn plays the fallback reply")
	return nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("companion backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
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
