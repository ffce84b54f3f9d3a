package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/kshitijlohbare/wellbook/libs/auth"
	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/libs/grpcx"
	"github.com/kshitijlohbare/wellbook/libs/httpx"
	"github.com/kshitijlohbare/wellbook/libs/kafkax"
	otelx "github.com/kshitijlohbare/wellbook/libs/otel"
	"github.com/kshitijlohbare/wellbook/libs/runtime"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/booking"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/handlers"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/idempotency"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/meeting"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/metrics"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/notify"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/outbox"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/policy"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/reminders"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/snapshot"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/storage"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
	}

	appointments := storage.NewAppointmentRepository(pool)
	meetings := storage.NewMeetingRepository(pool)
	notifications := storage.NewNotificationRepository(pool)
	reminderRepo := storage.NewReminderRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	provider, err := notify.NewProvider(ctx, cfg.Email, logger)
	if err != nil {
		logger.Error("email provider init failed", "err", err)
		panic(err)
	}
	logger.Info("email provider selected", "provider", provider.Name())
	dispatcher := notify.NewDispatcher(provider, notifications, logger, m)

	defaultOffsets, err := reminders.ParseOffsets(cfg.ReminderOffsets)
	if err != nil {
		logger.Warn("invalid REMINDER_OFFSETS entries ignored", "err", err)
	}
	offsets := policy.NewPractitionerProvider(storage.NewPractitionerRepository(pool), defaultOffsets, logger)
	scheduler := reminders.NewScheduler(reminderRepo, cfg.Location, logger, reminders.WithMetrics(m))

	deps := booking.Deps{
		Appointments: appointments,
		Meetings:     meetings,
		Notifier:     dispatcher,
		Reminders:    scheduler,
		Offsets:      offsets,
		Meeting:      meetingRouter(ctx, cfg, logger),
		Logger:       logger,
		Metrics:      m,
		Location:     cfg.Location,
	}
	if cfg.KafkaBrokers != "" {
		deps.Events = outboxRepo
	} else {
		logger.Info("KAFKA_BROKERS not set; appointment events are not recorded")
	}
	var idem *idempotency.Store
	var reconciler *snapshot.Reconciler
	if rdb != nil {
		reconciler = snapshot.NewReconciler(snapshot.NewRedisCache(rdb, "wellbook:appt", 7*24*time.Hour), appointments, logger)
		defer reconciler.Wait()
		deps.Snapshots = reconciler
		idem = idempotency.NewStore(rdb, "wellbook:idem", idempotency.DefaultTTL)
	}
	svc := booking.NewService(deps, booking.Policy{
		RegenerateOnReschedule: cfg.RegenerateOnReschedule,
		CascadeOnCancel:        cfg.CascadeOnCancel,
		StepTimeout:            cfg.StepTimeout,
	})

	if cfg.KafkaBrokers != "" {
		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)
	}

	var jwks *auth.JWKSClient
	if cfg.SupabaseJWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.SupabaseJWKSURL, 10*time.Minute)
	}
	requireUser := auth.RequireUser(auth.NewVerifier(cfg.SupabaseJWTSecret, jwks, cfg.SupabaseAudience))

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handlers.NewAppointmentHandler(svc, idem, logger, cfg.Location).Register(mux, requireUser)

	var rateLimit httpx.Middleware
	if rdb != nil {
		rateLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "wellbook:rl").Middleware(logger, true, nil)
	} else {
		rateLimit = httpx.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow).Middleware(nil)
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			ExposedHeaders:   []string{httpx.RequestIDHeader, "Idempotent-Replayed", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthSrv := grpcx.NewHealthServer(logger, "booking")
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go healthSrv.Serve(lis)

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	healthSrv.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// meetingRouter registers the real platform adapters that are configured;
// every other platform is served by the mock.
func meetingRouter(ctx context.Context, cfg appConfig, logger *slog.Logger) *meeting.Router {
	adapters := map[meeting.Platform]meeting.Adapter{}
	traced := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 15 * time.Second}

	if cfg.Zoom.Enabled() {
		zc := cfg.Zoom
		zc.HTTPClient = traced
		adapters[meeting.Zoom] = meeting.NewZoomAdapter(zc)
	}
	if cfg.GoogleCredentials != "" {
		svc, err := calendar.NewService(ctx,
			option.WithCredentialsFile(cfg.GoogleCredentials),
			option.WithScopes(calendar.CalendarEventsScope),
		)
		if err != nil {
			logger.Error("google calendar init failed; meet links fall back to mock", "err", err)
		} else {
			adapters[meeting.GoogleMeet] = meeting.NewGoogleMeetAdapter(svc, cfg.GoogleCalendarID)
		}
	}

	router := meeting.NewRouter(adapters)
	for _, p := range []meeting.Platform{meeting.Zoom, meeting.GoogleMeet} {
		logger.Info("meeting adapter", "platform", p, "real", router.Registered(p))
	}
	return router
}
