package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/shop_checkout/internal/clients"
	"github.com/Skotchmaster/shop_checkout/internal/config"
	"github.com/Skotchmaster/shop_checkout/internal/events"
	"github.com/Skotchmaster/shop_checkout/internal/httpserver"
	"github.com/Skotchmaster/shop_checkout/internal/idempotency"
	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/payment"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/service"
	"github.com/Skotchmaster/shop_checkout/pkg/authclient"
	"github.com/Skotchmaster/shop_checkout/pkg/db"
	"github.com/Skotchmaster/shop_checkout/pkg/logging"
	middleware "github.com/Skotchmaster/shop_checkout/pkg/middleware/auth"
	"github.com/Skotchmaster/shop_checkout/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/shop_checkout/pkg/middleware/logging"
	"github.com/Skotchmaster/shop_checkout/pkg/tokens"
)

// webhookClaimTTL bounds how long a crashed worker blocks redelivery of an event.
const webhookClaimTTL = 5 * time.Minute

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL, models.All()...)
	cancel()
	if err != nil {
		logger.Error("db_init_error", "error", err)
		os.Exit(1)
	}
	store := &repo.GormRepo{DB: gdb}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// webhooks are still processed, only without the duplicate shortcut
		logger.Warn("redis_unavailable", "addr", cfg.RedisAddr, "error", err)
	}
	cancel()

	publisher, closePublisher := newPublisher(cfg, logger)

	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("webhook_secret_missing", "reason", "every webhook delivery will fail with 500")
	}
	catalog := clients.NewCatalogClient(cfg.CatalogURL)
	authClient := authclient.NewClient(cfg.AuthHTTPURL)
	keys := tokens.NewKeyCache(tokens.StaticKey(cfg.JWTAccessSecret), cfg.SigningKeyTTL)

	carts := &service.CartService{Repo: store}
	syncer := &service.CouponSyncer{
		Repo:     store,
		Gateway:  gateway,
		Currency: cfg.Currency,
		Interval: cfg.CouponSyncInterval,
	}
	sweeper := &service.OrphanSweeper{
		Repo:     store,
		After:    cfg.OrphanAfter,
		Interval: cfg.OrphanSweepInterval,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowCredentials: true,
		ExposeHeaders:    []string{"X-CSRF-Token"},
	}))
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(csrf.Middleware(csrf.Config{
		Secure:         strings.HasPrefix(cfg.ClientURL, "https://"),
		TrustedOrigins: []string{cfg.ClientURL},
		SkipPaths:      []string{"/payment/webhook"},
	}))

	httpserver.Register(e, &httpserver.Deps{
		Payment: &httpserver.PaymentHTTP{
			Checkout: &service.CheckoutService{
				Repo:      store,
				Gateway:   gateway,
				Catalog:   catalog,
				Addresses: clients.NewAddressClient(cfg.AddressURL),
				Currency:  cfg.Currency,
				ClientURL: cfg.ClientURL,
			},
			Carts: carts,
			Webhook: &service.WebhookProcessor{
				Repo:    store,
				Gateway: gateway,
				Ledger:  idempotency.NewRedisLedger(rdb, webhookClaimTTL, cfg.WebhookEventTTL),
				Events:  publisher,
			},
		},
		Orders: &httpserver.OrderHTTP{Svc: &service.OrderService{
			Repo:         store,
			Gateway:      gateway,
			Catalog:      catalog,
			Users:        authClient,
			Events:       publisher,
			ReturnWindow: cfg.ReturnWindow,
		}},
		PromoCodes: &httpserver.PromoCodeHTTP{Svc: &service.PromoCodeService{
			Repo:    store,
			Gateway: gateway,
			Syncer:  syncer,
		}},
		Cart:      &httpserver.CartHTTP{Svc: carts},
		Auth:      middleware.NewAutoRefreshMiddleware(keys, authClient),
		RateLimit: rate.Limit(cfg.RateLimitRPS),
		RateBurst: cfg.RateLimitBurst,
		Ready: func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	jobsCtx, stopJobs := context.WithCancel(logging.IntoContext(context.Background(), logger))
	var jobs sync.WaitGroup
	for _, run := range []func(context.Context){syncer.Run, sweeper.Run} {
		jobs.Add(1)
		go func(run func(context.Context)) {
			defer jobs.Done()
			run(jobsCtx)
		}(run)
	}

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	go func() {
		logger.Info("server_starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server_error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("server_stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	stopJobs()
	jobs.Wait()

	if err := closePublisher(); err != nil {
		logger.Error("publisher_close_error", "error", err)
	}
	if err := rdb.Close(); err != nil {
		logger.Error("redis_close_error", "error", err)
	}
	if err := db.Close(gdb); err != nil {
		logger.Error("db_close_error", "error", err)
	}
	logger.Info("server_stopped")
}

func newPublisher(cfg config.ServiceConfig, logger *slog.Logger) (service.Publisher, func() error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS is empty")
		return events.Discard{}, func() error { return nil }
	}
	p := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.OrderEventsTopic))
	return p, p.Close
}
