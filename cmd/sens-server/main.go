package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sgshy1995/sens-server-sub000/internal/config"
	"github.com/sgshy1995/sens-server-sub000/internal/domain/room"
	"github.com/sgshy1995/sens-server-sub000/internal/domain/scheduling"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/auth"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/cache"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/db"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/kafka"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/middleware"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/notification"
	"github.com/sgshy1995/sens-server-sub000/internal/platform/rtc"
	"github.com/sgshy1995/sens-server-sub000/internal/scheduler"
	"github.com/sgshy1995/sens-server-sub000/internal/worker"
	"github.com/sgshy1995/sens-server-sub000/pkg/response"
)

// roomLookupAdapter exposes the room repository to the scheduling service
// through its narrow read interface, keeping the two domains decoupled.
type roomLookupAdapter struct {
	rooms room.Repository
}

func (a roomLookupAdapter) OpenRoomInfo(ctx context.Context, bookingID uuid.UUID) (*scheduling.RoomInfo, error) {
	rm, err := a.rooms.FindOpenByBooking(ctx, bookingID)
	if err != nil || rm == nil {
		return nil, err
	}
	return &scheduling.RoomInfo{
		ID:         rm.ID,
		RoomNumber: rm.RoomNumber,
		Status:     string(rm.Status),
		StartTime:  rm.StartTime,
		EndTime:    rm.EndTime,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sens-server",
		Short: "Telehealth rehabilitation booking server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the room scheduler and notification worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret: []byte(cfg.JWTSecret),
		}))
	}

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	var events scheduling.EventPublisher
	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.BookingEventsTopic)
		defer producer.Close()
		events = producer
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.BookingEventsTopic).Msg("event publishing enabled")
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set, events disabled")
	}

	roomRepo := room.NewRepoPG(pool)

	schedulingSvc := scheduling.NewService(
		pool,
		scheduling.NewTimeSlotRepoPG(pool),
		scheduling.NewBookingRepoPG(pool),
		scheduling.NewCourseRecordRepoPG(pool),
		roomLookupAdapter{rooms: roomRepo},
		events,
	)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)

	roomSvc := room.NewService(roomRepo, rtc.NewIssuer(cfg.RTCAppID, cfg.RTCSecret))
	room.NewHandler(roomSvc).RegisterRoutes(apiV1)

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	return nil
}

func runWorker() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	var locker scheduler.TickLocker
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisCache.Close()
		locker = redisCache
	} else {
		logger.Warn().Msg("REDIS_URL not set, running without a tick lock")
	}

	var events scheduler.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.BookingEventsTopic)
		defer producer.Close()
		events = producer
	}

	sched := scheduler.New(
		pool,
		scheduling.NewBookingRepoPG(pool),
		scheduling.NewTimeSlotRepoPG(pool),
		scheduling.NewCourseRecordRepoPG(pool),
		room.NewRepoPG(pool),
		locker,
		events,
		cfg.TickInterval,
		logger.With().Str("component", "scheduler").Logger(),
	)
	go sched.Run(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		sender := &notification.LogSender{Logf: func(format string, args ...any) {
			logger.Info().Msgf(format, args...)
		}}
		notifier := notification.NewManager(sender, sender, notification.NewTemplateEngine())
		w := worker.New(notifier, nil, logger.With().Str("component", "worker").Logger())

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.BookingEventsTopic)
		defer consumer.Close()

		go func() {
			if err := w.Run(ctx, consumer); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("notification worker stopped")
			}
		}()
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set, notifications disabled")
	}

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	return nil
}
