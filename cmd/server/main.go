package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iplance/iplance-core/internal/config"
	"github.com/iplance/iplance-core/internal/database"
	"github.com/iplance/iplance-core/internal/handler"
	"github.com/iplance/iplance-core/internal/metrics"
	"github.com/iplance/iplance-core/internal/middleware"
	"github.com/iplance/iplance-core/internal/queue"
	"github.com/iplance/iplance-core/internal/realtime"
	"github.com/iplance/iplance-core/internal/repository"
	"github.com/iplance/iplance-core/internal/router"
	"github.com/iplance/iplance-core/internal/service"
	"github.com/iplance/iplance-core/internal/utils"
)

func main() {
	// a missing .env is fine outside local development
	_ = godotenv.Load()
	cfg := config.Load()
	log.SetLevel(logLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		User:         cfg.DBUser,
		Pass:         cfg.DBPass,
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		Name:         cfg.DBName,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxOpenConns,
		PingAttempts: 10,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	users := repository.NewUserRepo(db)
	chats := repository.NewChatRepo(db)
	messages := repository.NewMessageRepo(db)

	tokens := service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  time.Duration(cfg.AccessTTLMin) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTLDays) * 24 * time.Hour,
		CSRFTTL:    time.Duration(cfg.CSRFTTLMin) * time.Minute,
	}, repository.NewRevocationRepo(rdb, cfg.RevokedPrefix))
	resolver := service.NewPrincipalResolver(tokens, users)

	codec, err := utils.NewMessageCodec(cfg.ChatKey)
	if err != nil {
		log.Fatalf("chat codec: %v", err)
	}

	m := metrics.New()
	registry := realtime.NewRegistry()
	registry.OnDrop = m.ConnectionDropped
	gateway := realtime.NewChatGateway(realtime.GatewayDeps{
		Registry:       registry,
		Resolver:       resolver,
		Revocations:    tokens,
		Chats:          chats,
		Messages:       messages,
		Codec:          codec,
		Offline:        service.NewOfflinePublisher(cfg.AMQPURL, cfg.OfflineQueue),
		Observer:       m,
		Config:         config.LoadRealtimeConfig(),
		OriginPatterns: cfg.AllowedOrigins,
	})

	if cfg.ConsumeOffline {
		go func() {
			if err := queue.StartOfflineConsumer(ctx, cfg.AMQPURL, cfg.OfflineQueue, cfg.OfflineLogDir); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("offline consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(m.Middleware())

	session := middleware.Session(resolver, m.AuthRejected)
	router.RegisterRoutes(e, &handler.HealthHandler{
		DB:    db,
		Redis: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, m.Handler())
	router.RegisterAuth(e,
		handler.NewAuthHandler(cfg, users, service.NewAuthService(users, tokens), tokens),
		session,
		middleware.TokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterChat(e, &handler.ChatHandler{
		Users:    users,
		Chats:    chats,
		Messages: messages,
		Codec:    codec,
		Gateway:  gateway,
	}, session)
	router.RegisterUsers(e, &handler.UsersHandler{Users: users}, session)

	addr := ":" + cfg.Port
	go func() {
		log.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	registry.Broadcast(realtime.NoticeFrame("server is shutting down"))
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

func logLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}
