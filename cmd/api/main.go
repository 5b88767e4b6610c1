package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prasetyo/pos-orders/internal/config"
	"github.com/prasetyo/pos-orders/internal/httpx"
	"github.com/prasetyo/pos-orders/internal/invoice"
	kafkax "github.com/prasetyo/pos-orders/internal/kafka"
	"github.com/prasetyo/pos-orders/internal/logx"
	"github.com/prasetyo/pos-orders/internal/order"
	"github.com/prasetyo/pos-orders/internal/pos"
	"github.com/prasetyo/pos-orders/internal/postgres"
	"github.com/prasetyo/pos-orders/internal/redisx"
)

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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (one writer, topic per message)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	// Repos & service
	catalog := &pos.CatalogRepo{DB: db}
	ledger := &pos.InventoryRepo{DB: db}
	store := &pos.OrderRepo{DB: db}
	svc := &order.Service{
		Catalog:  catalog,
		Ledger:   ledger,
		Store:    store,
		Invoicer: invoice.NewClient(cfg.InvoiceURL, cfg.InvoiceTimeout),
		Log:      log,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Svc:      svc,
		Producer: prod,
		Redis:    rdb,
		Log:      log,
		Service:  cfg.ServiceName,
	}
	oh.Register(router)
	ch := &httpx.CatalogHandler{Products: catalog, Inventory: ledger, Log: log}
	ch.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
}
