package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prasetyo/pos-orders/internal/config"
	kafkax "github.com/prasetyo/pos-orders/internal/kafka"
	"github.com/prasetyo/pos-orders/internal/logx"
	"github.com/prasetyo/pos-orders/internal/pos"
	"github.com/prasetyo/pos-orders/internal/redisx"
	"github.com/prasetyo/pos-orders/internal/statuscache"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logx.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &statuscache.Service{
		Redis:       rdb,
		Log:         log,
		ServiceName: cfg.ServiceName + "-statuscache",
	}

	group := getenv("STATUSCACHE_GROUP", "statuscache-svc")
	workers := mustAtoi(os.Getenv("STATUSCACHE_WORKERS"), "4")
	topics := []string{pos.TopicOrderCreated, pos.TopicOrderInvoiced, pos.TopicOrderCancelled}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topics, workers, log)

	go func() {
		log.Info("statuscache consumer started",
			zap.String("group", group),
			zap.Strings("topics", topics),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleEvent); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
