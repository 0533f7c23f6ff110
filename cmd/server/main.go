package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escaperoom/internal/api"
	"escaperoom/internal/cache"
	"escaperoom/internal/config"
	"escaperoom/internal/database"
	"escaperoom/internal/events"
	"escaperoom/internal/metrics"
	"escaperoom/internal/notify"
	"escaperoom/internal/service"
	"escaperoom/internal/slots"
	"escaperoom/internal/sweeper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg, err := config.Load(os.Getenv("ESCAPEROOM_CONFIG_PATH"))
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	logger := newLogger(cfg)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal().Msg("set auth.jwt_secret in config")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid booking timezone")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Rooms are synced from rooms.yaml on start and whenever the file changes.
	err = config.WatchRooms(ctx, cfg.Rooms.ConfigPath, cfg.RoomsReloadInterval(), &logger, func(rc *config.RoomsConfig) {
		if err := db.SyncRoomsFromConfig(ctx, rc); err != nil {
			logger.Error().Err(err).Msg("failed to sync rooms")
			return
		}
		logger.Info().Str("summary", rc.String()).Msg("rooms synced")
	})
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Rooms.ConfigPath).Msg("load rooms config error")
	}

	generator, err := slots.NewGenerator(slots.Window{Open: cfg.Booking.Open, Close: cfg.Booking.Close}, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid booking window")
	}

	svc := service.NewBookingService(db, db, generator, &logger)
	svc.SetMaxRangeDays(cfg.Booking.MaxRangeDays)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if cfg.Redis.CacheTTLSeconds > 0 {
			svc.UseCache(cache.NewAvailabilityCache(rdb, cfg.CacheTTL(), &logger))
		}
	}

	bus := events.NewEventBus(&logger)
	svc.UseEvents(bus)

	if token := cfg.Telegram.BotToken; token != "" && len(cfg.Telegram.AdminChatIDs) > 0 {
		botAPI, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			logger.Error().Err(err).Msg("telegram bot unavailable, admin notifications disabled")
		} else {
			notifier := notify.NewAdminNotifier(botAPI, notify.DefaultConfig(cfg.Telegram.AdminChatIDs), &logger)
			notifier.Subscribe(bus)
			go notifier.Run(ctx)
			logger.Info().Str("bot", botAPI.Self.UserName).Int("chats", len(cfg.Telegram.AdminChatIDs)).Msg("admin notifications enabled")
		}
	}

	scheduler := sweeper.NewScheduler(sweeper.Config{
		Interval:   cfg.SweepInterval(),
		RunOnStart: cfg.Sweeper.RunOnStart,
	}, svc, &logger)
	if cfg.Sweeper.Enabled {
		go scheduler.Start(ctx)
	}

	backup := database.NewBackupService(db, database.BackupConfig{
		Enabled:       cfg.Backup.Enabled,
		Interval:      cfg.BackupInterval(),
		StoragePath:   cfg.Backup.Path,
		RetentionDays: cfg.Backup.RetentionDays,
	}, &logger)
	go backup.Start(ctx)

	ready := func(ctx context.Context) error {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			return fmt.Errorf("db not ready: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				return fmt.Errorf("redis not ready: %w", err)
			}
		}
		return nil
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, ready, &logger)
	if cfg.Monitoring.GRPCHealthPort > 0 {
		go startGRPCHealthServer(ctx, cfg.Monitoring.GRPCHealthPort, ready, &logger)
	}
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Config{
		Address:         cfg.HTTP.Address,
		JWTSecret:       cfg.Auth.JWTSecret,
		RateLimitPerSec: float64(cfg.HTTP.RateLimitPerSec),
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
	}, svc, scheduler, &logger)

	go func() {
		<-ctx.Done()
		scheduler.Stop()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().
		Str("env", cfg.App.Env).
		Str("timezone", loc.String()).
		Str("window", cfg.Booking.Open+"-"+cfg.Booking.Close).
		Msg("escape room booking service started")

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("api server error")
	}
	logger.Info().Msg("shutdown complete")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil || cfg.App.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsProduction() {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, ready func(context.Context) error, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// startGRPCHealthServer serves grpc.health.v1 and keeps the overall status in
// line with the readiness check.
func startGRPCHealthServer(ctx context.Context, port int, ready func(context.Context) error, logger *zerolog.Logger) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Error().Err(err).Int("port", port).Msg("grpc health listen error")
		return
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if err := ready(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
	}
	update()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				update()
			}
		}
	}()

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error().Err(err).Msg("grpc health server error")
	}
}
