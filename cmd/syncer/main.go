package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Evanition/gettingtwitch-ids/internal/syncer"
	"github.com/Evanition/gettingtwitch-ids/pkg/api"
	"github.com/Evanition/gettingtwitch-ids/pkg/config"
	"github.com/Evanition/gettingtwitch-ids/pkg/cursor"
	"github.com/Evanition/gettingtwitch-ids/pkg/logger"
	"github.com/Evanition/gettingtwitch-ids/pkg/server"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Load config (.env is optional)
	godotenv.Load()
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return 1
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		return 1
	}
	defer l.Sync()

	l.Info("syncer initializing",
		zap.String("env", cfg.Environment),
		zap.String("data_path", cfg.Store.DataPath),
		zap.String("cursor_backend", cfg.Cursor.Backend))

	// 3. Initialize cursor store
	var cursorStore cursor.Store
	switch cfg.Cursor.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Cursor.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			l.Error("failed to connect to redis", err, zap.String("addr", cfg.Cursor.RedisAddr))
			return 1
		}
		defer client.Close()
		cursorStore = cursor.NewRedisStore(client, cfg.Cursor.RedisKey)
	default:
		cursorStore = cursor.NewFileStore(cfg.Cursor.Path)
	}

	// 4. Initialize API client
	apiClient := api.New(api.Config{
		BaseURL:       cfg.API.BaseURL,
		UserAgent:     cfg.API.UserAgent,
		Timeout:       cfg.API.Timeout,
		MatchesDelay:  cfg.API.MatchesDelay,
		ProfileDelay:  cfg.API.ProfileDelay,
		MaxRetries:    cfg.API.MaxRetries,
		RateLimitWait: cfg.API.RateLimitWait,
		TimeoutWait:   cfg.API.TimeoutWait,
	}, l)

	// 5. Create service
	svc := syncer.NewService(l, apiClient, cursorStore, syncer.Config{
		DataPath:          cfg.Store.DataPath,
		TargetMatchCount:  cfg.Syncer.TargetMatchCount,
		PageSize:          cfg.Syncer.PageSize,
		MatchType:         cfg.Syncer.MatchType,
		RefreshInterval:   cfg.Syncer.RefreshInterval,
		CycleInterval:     cfg.Syncer.CycleInterval,
		ProfileErrorLimit: cfg.Syncer.ProfileErrorLimit,
	})

	// 6. Start observability server
	obsServer := server.New(cfg.Server.Addr, l, nil)
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	// An interrupt cancels the context; the running cycle finishes its save
	// steps before Run returns.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Run
	exitCode := 0
	if err := svc.Run(ctx); err != nil {
		l.Error("syncer failed", err)
		exitCode = 1
	} else {
		l.Info("syncer finished")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obsServer.Shutdown(shutdownCtx)

	return exitCode
}
