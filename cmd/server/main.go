package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-slot-booking/internal/booking"
	"github.com/iliyamo/court-slot-booking/internal/config"
	"github.com/iliyamo/court-slot-booking/internal/database"
	"github.com/iliyamo/court-slot-booking/internal/handler"
	"github.com/iliyamo/court-slot-booking/internal/jobs"
	"github.com/iliyamo/court-slot-booking/internal/logger"
	"github.com/iliyamo/court-slot-booking/internal/middleware"
	"github.com/iliyamo/court-slot-booking/internal/queue"
	"github.com/iliyamo/court-slot-booking/internal/repository"
	"github.com/iliyamo/court-slot-booking/internal/router"
)

// redisPinger adapts the Redis client to handler.Pinger.
type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Params{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		LockWaitSeconds: cfg.DBLockWaitSeconds,
	})
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migrate database")
		}
	}
	store := repository.NewStore(db, nil)

	// Redis backs the rate limiter, the quote cache and the job lease.
	// Without it those features are off and the engine still works.
	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("redis unavailable; rate limiting, cache and job leases disabled")
	} else {
		defer rdb.Close()
	}

	var emitter booking.Emitter = booking.NopEmitter{}
	var async *queue.AsyncEmitter
	pub, err := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		log.WithError(err).Warn("rabbitmq unavailable; booking events will not be published")
	} else {
		defer pub.Close()
		async = queue.NewAsyncEmitter(pub, log, cfg.AMQP.PublishTimeout)
		emitter = async
	}

	svc := booking.NewService(store, booking.Options{
		HoldTTL:     cfg.Booking.HoldTTL,
		MaxHoldTTL:  cfg.Booking.MaxHoldTTL,
		ServiceFee:  cfg.Booking.ServiceFee,
		NoShowGrace: cfg.Booking.NoShowGrace,
		SweepBatch:  cfg.Booking.SweepBatch,
		HorizonDays: cfg.Booking.HorizonDays,
		Location:    cfg.Location(),
		PublicURL:   cfg.PublicURL,
		BcryptCost:  cfg.BcryptCost,
		Emitter:     emitter,
		Logger:      log,
	})

	var sched *jobs.Scheduler
	if cfg.Jobs.Enabled {
		var locker jobs.Locker
		if rdb != nil {
			locker = jobs.NewRedisLocker(rdb, "jobs")
		}
		sched, err = jobs.New(svc, locker, jobs.Config{
			HoldSweepSpec: cfg.Jobs.HoldSweep,
			NoShowSpec:    cfg.Jobs.NoShow,
			LeaseTTL:      cfg.Jobs.LeaseTTL,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("schedule jobs")
		}
		sched.Start()
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		payments := queue.NewPaymentHandler(svc, log)
		err := queue.Consume(ctx, queue.ConsumerConfig{
			URL:      cfg.AMQP.URL,
			Exchange: cfg.AMQP.PaymentExchange,
			Queue:    cfg.AMQP.PaymentQueue,
			Keys:     queue.PaymentKeys,
			Prefetch: cfg.AMQP.Prefetch,
			Name:     "payment-consumer",
		}, payments.Handle, log)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("payment consumer stopped")
		}
	}()

	lim, err := middleware.NewRedisLimiter(cfg.RateLimit, rdb)
	if err != nil {
		log.WithError(err).Fatal("rate limiter")
	}
	var cache echo.MiddlewareFunc
	if rdb != nil {
		cache = middleware.NewRedisCache(cfg.Cache, rdb)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	deps := map[string]handler.Pinger{"mysql": db}
	if rdb != nil {
		deps["redis"] = redisPinger{rdb: rdb}
	}
	router.RegisterRoutes(e, handler.Ready(deps))
	router.RegisterPublic(e, handler.NewPublicHandler(svc, log), cache)
	router.RegisterCustomer(e, handler.NewCustomerHandler(svc, log), cfg.JWTSecret, lim, log)
	router.RegisterStaff(e, handler.NewStaffHandler(svc, store.Catalog, store.Pricing, log), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	<-consumerDone
	if async != nil {
		async.Wait()
	}
}
