package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kshitijlohbare/wellbook/libs/config"
	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/libs/grpcx"
	"github.com/kshitijlohbare/wellbook/libs/httpx"
	otelx "github.com/kshitijlohbare/wellbook/libs/otel"
	"github.com/kshitijlohbare/wellbook/libs/runtime"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/metrics"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/notify"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/reminders"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "reminder-worker")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(logger)
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	provider, err := notify.NewProvider(ctx, notify.ProviderConfig{
		Kind: config.String("EMAIL_PROVIDER", "log"),
		From: notify.From{Email: config.String("EMAIL_FROM", ""), Name: config.String("EMAIL_FROM_NAME", "")},
		SMTP: notify.SMTPConfig{
			Host:     config.String("SMTP_HOST", "mailpit"),
			Port:     config.Int("SMTP_PORT", 1025),
			Username: config.String("SMTP_USER", ""),
			Password: config.String("SMTP_PASS", ""),
		},
		SendGridAPIKey: config.String("SENDGRID_API_KEY", ""),
		AWSRegion:      config.String("AWS_REGION", ""),
	}, logger)
	if err != nil {
		logger.Error("email provider init failed", "err", err)
		panic(err)
	}
	dispatcher := notify.NewDispatcher(provider, storage.NewNotificationRepository(pool), logger, m)

	worker := reminders.NewWorker(pool, storage.NewReminderRepository(pool), dispatcher, logger, m, reminders.WorkerConfig{
		Interval:    config.Seconds("REMINDER_POLL_SECONDS", 30*time.Second),
		BatchSize:   config.Int("REMINDER_BATCH_SIZE", 50),
		Backoff:     config.Seconds("REMINDER_BACKOFF_SECONDS", time.Minute),
		SendTimeout: config.Seconds("STEP_TIMEOUT_SECONDS", 10*time.Second),
		Lease:       config.Seconds("REMINDER_LEASE_SECONDS", 5*time.Minute),
	})
	go worker.Run(ctx)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if addr := config.String("BOOKING_GRPC_ADDR", ""); addr != "" {
		conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
		if err != nil {
			logger.Error("booking grpc dial failed", "err", err)
		} else {
			defer conn.Close()
			checks = append(checks, runtime.ReadyCheck{Name: "booking", Check: grpcx.HealthCheck(conn, "booking")})
		}
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "reminder-worker")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("reminder worker stopped")
}
