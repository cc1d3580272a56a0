package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/campus-assistant/backend/internal/analysis/search"
	"github.com/zhouzirui/campus-assistant/backend/internal/config"
	"github.com/zhouzirui/campus-assistant/backend/internal/handler"
	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	"github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/service/conversation"
	"github.com/zhouzirui/campus-assistant/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Init(cfg.Log)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, continuing with system environment variables only")
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	kb, err := knowledge.LoadFile(cfg.Knowledge.Path)
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	logger.Info().
		Int("menus", len(kb.MenuIDs())).
		Int("keywords", len(kb.Keywords())).
		Str("source", sourceName(cfg.Knowledge.Path)).
		Msg("knowledge base loaded")

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}()
	logger.Info().Str("driver", string(cfg.Store.Driver)).Msg("session store ready")

	matcher := search.FromKnowledge(kb)
	chatSvc := chat.NewService(st, kb)
	conversationSvc := conversation.NewService(conversation.NewEngine(kb, matcher), chatSvc)

	router := handler.NewRouter(logger, kb, matcher, chatSvc, conversationSvc, handler.Options{
		TypingDelay:    cfg.Widget.TypingDelay,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	return runServer(ctx, srv, cfg.Server.ShutdownTimeout, logger)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case store.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis at %s: %w", cfg.Redis.Address, err)
		}
		return store.New(store.DriverRedis,
			store.WithRedisClient(client),
			store.WithRedisTTL(cfg.Redis.TTL),
			store.WithKeyPrefix(cfg.Redis.Prefix),
		)
	case store.DriverSQLite:
		return store.New(store.DriverSQLite, store.WithSQLitePath(cfg.SQLite.Path))
	default:
		return store.New(store.DriverMemory)
	}
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("campus assistant backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
