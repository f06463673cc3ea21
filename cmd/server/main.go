package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
	"github.com/githaohao/xzxz-lm-chat/internal/config"
	"github.com/githaohao/xzxz-lm-chat/internal/db"
	"github.com/githaohao/xzxz-lm-chat/internal/gatewaytoken"
	"github.com/githaohao/xzxz-lm-chat/internal/httpapi"
	"github.com/githaohao/xzxz-lm-chat/internal/logger"
	"github.com/githaohao/xzxz-lm-chat/internal/ratelimit"
	"github.com/githaohao/xzxz-lm-chat/internal/store/rabbitmq"
	"github.com/githaohao/xzxz-lm-chat/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	defer func() { _ = rds.Close() }()

	// Events are best-effort: a broker outage must not take the API down.
	var events chat.EventPublisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
	} else {
		events = pub
		defer func() { _ = pub.Close() }()
	}

	verify, err := gatewaytoken.New(gatewaytoken.Options{
		Secret:   cfg.GatewaySecret,
		Issuer:   cfg.GatewayIssuer,
		Audience: cfg.GatewayAudience,
	})
	if err != nil {
		log.Fatal("gateway token config", zap.Error(err))
	}

	limiter, err := ratelimit.New(rds.Client(), "chat:rl", cfg.RateLimitPerUser, cfg.RateLimitWindow)
	if err != nil {
		log.Fatal("rate limiter config", zap.Error(err))
	}

	svc := chat.NewService(chat.NewRepo(gdb), events, rds, log)

	r := httpapi.NewRouter(cfg, httpapi.Deps{
		DB:      gdb,
		Redis:   rds,
		ChatSvc: svc,
		Verify:  verify,
		Limiter: limiter,
		Log:     log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}
