package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonbot/internal/access"
	"salonbot/internal/audit"
	"salonbot/internal/booking"
	"salonbot/internal/bot"
	"salonbot/internal/calendar"
	"salonbot/internal/config"
	"salonbot/internal/db"
	"salonbot/internal/events"
	"salonbot/internal/extractor"
	"salonbot/internal/health"
	"salonbot/internal/metrics"
	"salonbot/internal/reminders"
	"salonbot/internal/state"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// .env is optional; real environment wins
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SALONBOT_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		logger = logger.Level(level)
	}

	loc := cfg.Location()

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	var stateRepo state.Repository = state.NewMemoryRepository(cfg.StateTTL())
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		stateRepo = state.NewFailoverRepository(
			state.NewRedisRepository(rdb, cfg.StateTTL()),
			stateRepo,
			&logger,
		)
	}

	var remote calendar.Remote = calendar.NewMemoryCalendar()
	if cfg.Calendar.Enabled {
		gc, err := calendar.NewGoogleCalendar(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.CalendarID)
		if err != nil {
			logger.Fatal().Err(err).Msg("google calendar init error")
		}
		remote = gc
	} else {
		logger.Warn().Msg("Calendar disabled, slots are tracked in memory only")
	}
	cal := calendar.NewAdapter(remote, calendar.AdapterConfig{
		Workers:       cfg.CalendarWorkers(),
		Timeout:       cfg.CalendarTimeout(),
		EventDuration: cfg.EventDuration(),
		Location:      loc,
	}, &logger)

	ext := extractor.New(extractor.Config{
		AuthURL:            cfg.Extractor.AuthURL,
		APIURL:             cfg.Extractor.APIURL,
		AuthKey:            cfg.Extractor.AuthKey,
		Scope:              cfg.Extractor.Scope,
		Model:              cfg.Extractor.Model,
		InsecureSkipVerify: cfg.Extractor.InsecureSkipVerify,
		Timeout:            cfg.ExtractorTimeout(),
		Location:           loc,
	}, &logger)

	bus := events.NewEventBus()
	bookingSvc := booking.NewService(database, cal, ext, bus, loc, &logger)
	defer bookingSvc.Wait()

	b, err := bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, bot.Deps{
		Booking:  bookingSvc,
		Users:    database,
		State:    stateRepo,
		Access:   access.NewService(database, cfg.Admins, &logger),
		Exporter: audit.NewService(database, &logger),
		Events:   bus,
		Workers:  int64(cfg.Telegram.Workers),
	}, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create bot error")
	}

	reminderSvc := reminders.NewService(reminders.Config{
		CheckInterval: cfg.ReminderInterval(),
		Window:        cfg.ReminderWindow(),
		RatePerSecond: cfg.Reminders.RatePerSecond,
		Burst:         cfg.Reminders.Burst,
		Location:      loc,
	}, database, b, prometheus.DefaultRegisterer, &logger)
	b.UseReminders(reminderSvc)

	checks := []health.Check{{Name: "db", Ping: database.PingContext}}
	if rdb != nil {
		checks = append(checks, health.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	checker := health.NewChecker(checks...)
	go health.Serve(ctx, "health", cfg.Monitoring.HealthCheckPort, checker.Handler(), &logger)

	if cfg.Monitoring.GRPCHealthPort > 0 {
		grpcHealth := health.NewGRPCServer(checker, &logger)
		go func() {
			if err := grpcHealth.ListenAndServe(ctx, cfg.Monitoring.GRPCHealthPort, 10*time.Second); err != nil {
				logger.Error().Err(err).Msg("grpc health server error")
			}
		}()
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go health.Serve(ctx, "metrics", cfg.Monitoring.PrometheusPort, mux, &logger)
	}

	if cfg.Backup.Enabled {
		backups := db.NewBackupService(database, db.BackupConfig{
			Enabled:       true,
			Interval:      cfg.BackupInterval(),
			StoragePath:   cfg.Backup.Path,
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backups.Start(ctx)
	}

	reminderSvc.Start(ctx)
	defer reminderSvc.Stop()

	logger.Info().Str("timezone", loc.String()).Msg("Salon bot started")
	b.Start(ctx)

	logger.Info().Msg("Salon bot stopped")
}
