package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/KnyazyanNar/kasir-store/internal/catalog"
	"github.com/KnyazyanNar/kasir-store/internal/config"
	"github.com/KnyazyanNar/kasir-store/internal/fulfillment"
	kafkax "github.com/KnyazyanNar/kasir-store/internal/kafka"
	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/postgres"
	"github.com/KnyazyanNar/kasir-store/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &fulfillment.Service{
		Orders:            &orders.Repo{DB: db},
		Catalog:           &catalog.Repo{DB: db},
		Redis:             rdb,
		ServiceName:       cfg.ServiceName + "-fulfillment",
		LowStockThreshold: atoi(os.Getenv("LOW_STOCK_THRESHOLD"), 3),
	}

	group := getenv("FULFILLMENT_GROUP", "fulfillment-svc")
	workers := atoi(os.Getenv("FULFILLMENT_WORKERS"), 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderPaid, workers)

	go func() {
		log.Printf("fulfillment consumer started: group=%s topic=%s workers=%d", group, orders.TopicOrderPaid, workers)
		if err := cons.Start(ctx, svc.HandleOrderPaid); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
