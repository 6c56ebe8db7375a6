package main

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/telemetry"
	"github.com/joho/godotenv"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-notifier"
	log := telemetry.InitLogger(cfg.LogLevel, service)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.SetupTracer(ctx, service, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer setup", "err", err)
		os.Exit(1)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	w := &notify.Worker{Redis: rdb, Mailer: notify.LogMailer{}, Service: "notifier"}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.NotificationTopic, cfg.NotifierWorkers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started",
			"group", cfg.NotifierGroup, "topic", cfg.NotificationTopic, "workers", cfg.NotifierWorkers)
		if err := cons.Start(ctx, w.Handle); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	<-done

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := shutdownTracer(ctx2); err != nil {
		log.Warn("tracer shutdown", "err", err)
	}
}
