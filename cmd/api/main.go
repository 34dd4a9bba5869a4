package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/KnyazyanNar/kasir-store/internal/auth"
	"github.com/KnyazyanNar/kasir-store/internal/catalog"
	"github.com/KnyazyanNar/kasir-store/internal/checkout"
	"github.com/KnyazyanNar/kasir-store/internal/config"
	"github.com/KnyazyanNar/kasir-store/internal/httpx"
	kafkax "github.com/KnyazyanNar/kasir-store/internal/kafka"
	"github.com/KnyazyanNar/kasir-store/internal/media"
	"github.com/KnyazyanNar/kasir-store/internal/orders"
	"github.com/KnyazyanNar/kasir-store/internal/payments"
	"github.com/KnyazyanNar/kasir-store/internal/postgres"
	"github.com/KnyazyanNar/kasir-store/internal/reconcile"
	"github.com/KnyazyanNar/kasir-store/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.StripeSecretKey == "" {
		log.Fatal("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		log.Fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if cfg.SessionSecret == "" {
		log.Fatal("SESSION_SECRET is required")
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per lifecycle topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	pPaid.Start(ctx)
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderFailed, 1024)
	pFailed.Start(ctx)

	// Payments
	gateway := payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	// Image storage
	var uploader media.Uploader
	if cfg.CloudinaryURL != "" {
		cld, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
		uploader = cld
	} else {
		log.Println("CLOUDINARY_URL not set, image uploads disabled")
	}

	// Repos & services
	catalogRepo := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	sessions := &auth.Sessions{
		Secret:   []byte(cfg.SessionSecret),
		MaxAge:   cfg.SessionMaxAge,
		Denylist: &redisx.Denylist{Redis: rdb},
	}
	checkoutSvc := &checkout.Service{
		Catalog:  catalogRepo,
		Orders:   orderRepo,
		Gateway:  gateway,
		Currency: cfg.Currency,
	}
	reconciler := &reconcile.Reconciler{
		Orders:         orderRepo,
		Redis:          rdb,
		PaidProducer:   pPaid,
		FailedProducer: pFailed,
		ServiceName:    cfg.ServiceName,
	}

	// Handlers
	router := httpx.NewRouter()
	(&httpx.CatalogHandler{Repo: catalogRepo}).Register(router)
	(&httpx.CheckoutHandler{
		Checkout:    checkoutSvc,
		Gateway:     gateway,
		Orders:      orderRepo,
		Producer:    pCreated,
		Redis:       rdb,
		SiteURL:     cfg.SiteURL,
		ServiceName: cfg.ServiceName,
	}).Register(router)
	(&httpx.WebhookHandler{Stripe: gateway, Reconciler: reconciler}).Register(router)
	(&httpx.OrdersHandler{Repo: orderRepo, Redis: rdb}).Register(router)
	(&httpx.AuthHandler{
		Sessions:          sessions,
		AdminEmail:        cfg.AdminEmail,
		AdminPasswordHash: cfg.AdminPasswordHash,
		SecureCookies:     os.Getenv("ENV") == "production",
	}).Register(router)
	(&httpx.AdminHandler{Catalog: catalogRepo, Sessions: sessions, Uploader: uploader}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close()
	pPaid.Close()
	pFailed.Close()
	cancel()
	pCreated.WaitClosed()
	pPaid.WaitClosed()
	pFailed.WaitClosed()
}
