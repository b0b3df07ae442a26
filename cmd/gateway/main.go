package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/governance-api/internal/activity"
	"github.com/aman-churiwal/governance-api/internal/cache"
	"github.com/aman-churiwal/governance-api/internal/config"
	"github.com/aman-churiwal/governance-api/internal/handler"
	"github.com/aman-churiwal/governance-api/internal/healthcheck"
	"github.com/aman-churiwal/governance-api/internal/logger"
	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/aman-churiwal/governance-api/internal/middleware"
	"github.com/aman-churiwal/governance-api/internal/quota"
	"github.com/aman-churiwal/governance-api/internal/ratelimit"
	"github.com/aman-churiwal/governance-api/internal/repository"
	"github.com/aman-churiwal/governance-api/internal/server"
	"github.com/aman-churiwal/governance-api/internal/service"
	"github.com/aman-churiwal/governance-api/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"k8s.io/utils/clock"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.json", "path to the JSON config file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.Log)
	metrics.Register(prometheus.DefaultRegisterer)

	matrix := quota.DefaultMatrix()
	if err := matrix.Validate(); err != nil {
		log.Fatalf("Invalid plan matrix: %v", err)
	}

	policy, err := ratelimit.ParsePolicy(cfg.RateLimit.Classes)
	if err != nil {
		log.Fatalf("Invalid rate limit policy: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	postgres, err := storage.NewPostgres(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Info("Connected to database successfully")

	realClock := clock.RealClock{}
	selection := cache.Open(cache.Options{
		URL:             cfg.Redis.URL,
		OpTimeout:       cfg.Redis.OpTimeout(),
		ProbeTimeout:    cfg.Redis.ProbeTimeout(),
		BreakerFailures: cfg.Redis.BreakerFailures,
		BreakerTimeout:  cfg.Redis.BreakerTimeout(),
		Clock:           realClock,
		Logger:          log,
	})

	probes := map[string]healthcheck.ProbeFunc{
		"database": postgres.Ping,
	}
	var admin handler.AdminDeps
	if selection.Client != nil {
		defer selection.Client.Close()
		probes["redis"] = selection.Client.Ping
		if rb, ok := selection.Backend.(*cache.RedisBackend); ok {
			admin.Breaker = rb.Breaker()
		}
	}
	if mb, ok := selection.Backend.(*cache.MemoryBackend); ok {
		mb.StartJanitor(ctx, time.Minute)
	}

	c := cache.New(selection.Backend, selection.Mode, log)

	limiter, err := ratelimit.NewLimiter(cfg.RateLimit.Algorithm, selection.Backend, realClock)
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}
	limits := ratelimit.NewService(limiter, policy, realClock, log)

	userRepo := repository.NewUserRepository(postgres)
	admissionRepo := repository.NewAdmissionLogRepository(postgres)

	subscriptions := service.NewSubscriptionService(userRepo)
	gate := quota.NewGate(matrix, subscriptions, 2*time.Second, log)

	tracker := activity.NewTracker(realClock, activity.WithPresence(c))
	scheduler := activity.NewScheduler(realClock)

	checker := healthcheck.NewChecker(healthcheck.Config{
		Probes: probes,
		Clock:  realClock,
		Logger: log,
	})
	checker.Start()
	defer checker.Stop()

	admissionLogger := middleware.NewAdmissionLogger(admissionRepo, 1000, log)
	logCtx, stopLogs := context.WithCancel(context.Background())
	admissionLogger.Start(logCtx)

	admin.Cache = c
	admin.Tracker = tracker
	admin.Scheduler = scheduler
	admin.Counter = admissionRepo
	admin.Tiers = subscriptions
	admin.Clock = realClock
	admin.Logger = log
	admin.ActiveWindow = cfg.Idle.IdleTimeout()

	srv, err := server.New(server.Deps{
		Config:    cfg,
		Logger:    log,
		Cache:     c,
		Limits:    limits,
		Gate:      gate,
		Auth:      service.NewAuthService(cfg.JWT.Secret),
		Tracker:   tracker,
		Admission: admissionLogger,
		Health:    checker,
		Admin:     handler.NewAdminHandler(admin),
		Session:   handler.NewSessionHandler(tracker, subscriptions, matrix),
		Metrics:   promhttp.Handler(),
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if cfg.Idle.Enabled {
		supervisor := activity.NewSupervisor(tracker, scheduler, activity.SupervisorConfig{
			IdleTimeout:      cfg.Idle.IdleTimeout(),
			ShutdownDelay:    cfg.Idle.ShutdownDelay(),
			PollInterval:     cfg.Idle.PollInterval(),
			CancelOnActivity: cfg.Idle.CancelOnActivity,
			OnShutdown:       stop,
		}, realClock, log)
		supervisor.Start()
		defer supervisor.Stop()
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	stopLogs()
	admissionLogger.Wait()
	tracker.Wait()

	log.Info("Server exited")
}
