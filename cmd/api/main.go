package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/coupons"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/pricing"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/search"
	"github.com/ariefcatur/go-storefront-orders/internal/telemetry"
	"github.com/ariefcatur/go-storefront-orders/internal/users"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := telemetry.InitLogger(cfg.LogLevel, cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		fatal(log, "tracer setup", err)
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal(log, "db connect", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		fatal(log, "db migrate", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Search index
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		fatal(log, "mongo connect", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	if err := mc.Ping(ctx, nil); err != nil {
		fatal(log, "mongo ping", err)
	}

	variants := &catalog.Repo{DB: db}
	carts := &cart.Repo{DB: db}
	couponRepo := &coupons.Repo{DB: db}
	userRepo := &users.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}

	index := search.New(mc.Database(cfg.MongoDatabase), &search.SyncState{}, log)
	err = index.Resync(ctx, []search.Source{
		{Collection: search.Users, Stream: userRepo.Stream},
		{Collection: search.Variants, Stream: variants.Stream},
		{Collection: search.Orders, Stream: orderRepo.Stream},
		{Collection: search.Carts, Stream: carts.Stream},
		{Collection: search.Coupons, Stream: couponRepo.Stream},
	})
	if err != nil {
		// reads degrade until the next start; writes still mirror as they go
		log.Error("index resync failed", "err", err)
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotificationTopic, 1024)
	prod.Start(ctx)

	p := cfg.Pricing
	co := &checkout.Service{
		Carts:     carts,
		Inventory: variants,
		Coupons:   couponRepo,
		Users:     userRepo,
		Signup:    userRepo,
		Orders:    orderRepo,
		Index:     index,
		Notifier:  &notify.Dispatcher{Pub: prod, Producer: cfg.ServiceName},
		Cache:     rdb,
		Pricing: pricing.Policy{
			ShippingFee:          p.ShippingFee,
			TaxRate:              p.TaxRate,
			LoyaltyPointValue:    p.LoyaltyPointValue,
			LoyaltyAccrualRate:   p.LoyaltyAccrualRate,
			LoyaltyRedemptionCap: p.LoyaltyRedemptionCap,
		},
		Timeout: cfg.CheckoutTimeout,
	}

	router := httpx.NewRouter(
		&httpx.OrdersHandler{
			Checkout: co,
			Status:   &orders.StatusService{Store: orderRepo, Index: index, Cache: rdb},
			Queries:  &orders.Queries{Index: index, Cache: rdb},
		},
		&httpx.CartHandler{Service: &cart.Service{Store: carts, Catalog: variants, Index: index, Reader: index}},
	)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "listen", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // flush queued notifications
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
	if err := shutdownTracer(ctx2); err != nil {
		log.Warn("tracer shutdown", "err", err)
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "err", err)
	os.Exit(1)
}
