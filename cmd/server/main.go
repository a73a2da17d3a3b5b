package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hotel-reservation/internal/config"
	"github.com/iliyamo/hotel-reservation/internal/database"
	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/logger"
	"github.com/iliyamo/hotel-reservation/internal/middleware"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/router"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, database.MySQL); err != nil {
		zl.Fatal("migrate failed", zap.Error(err))
	}

	redisCfg := config.LoadRedisConfig()
	rdb := config.NewRedisClient(redisCfg)
	var availCache service.AvailabilityCache = service.NopCache{}
	var gapVersion middleware.VersionFunc
	if rdb != nil {
		defer rdb.Close()
		rc := service.NewRedisAvailabilityCache(rdb, cfg.AvailabilityCacheTTL, redisCfg.Prefix, zl)
		availCache = rc
		gapVersion = func(c echo.Context) string {
			id, err := strconv.ParseUint(c.Param("id"), 10, 64)
			if err != nil {
				return ""
			}
			return rc.VersionKey(id)
		}
	} else {
		zl.Warn("redis unavailable; caching and rate limiting disabled", zap.String("addr", redisCfg.Addr))
	}

	var publisher service.ConfirmationPublisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL, zl)
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.BookingLogPath, zl)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("confirmation consumer stopped", zap.Error(err))
			}
		}()
	}

	gateway := payment.NewChapaClient(payment.ChapaConfig{
		BaseURL:   cfg.Payment.BaseURL,
		SecretKey: cfg.Payment.SecretKey,
		Timeout:   cfg.Payment.Timeout,
	}, zl)

	catalog := repository.NewCatalogRepo(db, repository.MySQL)
	reservations := repository.NewReservationRepo(db, repository.MySQL)
	eventBookings := repository.NewEventBookingRepo(db, repository.MySQL)
	users := repository.NewUserRepo(db)
	clock := service.Clock(service.SystemClock)

	availability := service.NewAvailabilityService(catalog, reservations, eventBookings, availCache, zl)
	allocator := service.NewAllocator(catalog, reservations, eventBookings, availCache, clock, zl)
	lifecycle := service.NewLifecycle(reservations, eventBookings, availCache, clock, zl)
	payments := service.NewPayments(reservations, eventBookings, catalog, users, gateway, publisher,
		service.PaymentConfig{
			Currency:    cfg.Payment.Currency,
			CallbackURL: cfg.Payment.CallbackURL,
			ReturnURL:   cfg.Payment.ReturnURL,
		}, clock, zl)
	gaps := service.NewGapFinder(catalog, reservations, cfg.GapHorizonDays, zl)

	if cfg.PendingSweepInterval > 0 {
		go sweepPending(ctx, lifecycle, cfg.PendingSweepInterval, cfg.PendingExpiry, zl)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(logger.RequestID())
	e.Use(logger.Middleware(zl))

	router.Register(e, router.Handlers{
		Health:       &handler.HealthHandler{DB: db, Redis: rdb},
		Availability: handler.NewAvailabilityHandler(availability, gaps, zl),
		Reservations: handler.NewReservationHandler(allocator, lifecycle, zl),
		Events:       handler.NewEventHandler(allocator, lifecycle, zl),
		Payments:     handler.NewPaymentHandler(payments, zl),
		Admin:        handler.NewAdminHandler(lifecycle, payments, cfg.PendingExpiry, zl),
	}, router.Middlewares{
		RateLimit:     middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl),
		ResponseCache: middleware.NewRedisCache(config.LoadCacheConfig(), rdb, gapVersion),
	}, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

// sweepPending cancels abandoned checkouts every interval so their rooms
// and tickets go back on sale.
func sweepPending(ctx context.Context, lc *service.Lifecycle, interval, olderThan time.Duration, log *zap.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := lc.ExpirePending(ctx, olderThan); err != nil {
				log.Warn("pending sweep failed", zap.Error(err))
			}
		}
	}
}
