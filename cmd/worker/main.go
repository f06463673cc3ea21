package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
	"github.com/githaohao/xzxz-lm-chat/internal/config"
	"github.com/githaohao/xzxz-lm-chat/internal/db"
	"github.com/githaohao/xzxz-lm-chat/internal/logger"
	"github.com/githaohao/xzxz-lm-chat/internal/store/rabbitmq"
	"github.com/githaohao/xzxz-lm-chat/internal/store/redisstore"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

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

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	defer func() { _ = rds.Close() }()

	// The worker only reconciles; it never republishes events.
	svc := chat.NewService(chat.NewRepo(gdb), nil, rds, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", zap.Error(err))
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency))

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var ev chat.Event
				if err := json.Unmarshal(d.Body, &ev); err != nil || ev.SessionID == "" {
					log.Warn("bad event payload",
						zap.Int("worker", workerID),
						zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleEvent(ctx, svc, ev); err != nil {
					log.Warn("event handling failed",
						zap.Int("worker", workerID),
						zap.String("event_id", ev.ID),
						zap.String("kind", string(ev.Kind)),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Warn("ack failed",
						zap.Int("worker", workerID),
						zap.String("event_id", ev.ID),
						zap.Error(err))
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleEvent verifies the session's denormalized counters against the
// message table. Every event kind can leave drift behind when a request
// dies between the counter write and the commit, so they all reconcile.
func handleEvent(ctx context.Context, svc *chat.Service, ev chat.Event) error {
	switch ev.Kind {
	case chat.EventMessageCreated, chat.EventMessageDeleted, chat.EventSessionDeleted:
		return svc.ReconcileSession(ctx, ev.SessionID)
	default:
		// Unknown kinds are acked, not dead-lettered; a newer producer may
		// emit kinds this worker predates.
		return nil
	}
}
