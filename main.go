package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webrelay/internal/audit"
	"webrelay/internal/auth"
	"webrelay/internal/config"
	"webrelay/internal/eventing"
	"webrelay/internal/observability/metrics"
	relayapp "webrelay/internal/relays/application"
	"webrelay/internal/relays/history"
	"webrelay/internal/relays/infrastructure/memory"
	relayrepo "webrelay/internal/relays/infrastructure/postgres"
	relayhttp "webrelay/internal/relays/interfaces/http"
	"webrelay/internal/relays/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	out, closer := cfg.LogWriter(os.Stdout)
	defer closer.Close()
	logger := log.New(out, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("DATABASE_URL not set; command log and audit trail go to the process log only")
	}

	metrics.Init(db, logger)

	bus := eventing.NewInMemoryBus()
	recorder := history.NewRecorder(cfg.HistorySize)
	recorder.Register(bus)

	var auditLogger audit.Logger = audit.NewLogLogger(logger)
	if db != nil {
		commandLog := relayrepo.NewCommandLogRepository(db)
		if err := commandLog.EnsureSchema(ctx); err != nil {
			logger.Fatalf("command log schema error: %v", err)
		}
		relayrepo.NewCommandLogConsumer(commandLog, logger).Register(bus)

		auditRepo := audit.NewRepository(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			logger.Fatalf("audit schema error: %v", err)
		}
		auditLogger = auditRepo
	}

	store := memory.NewCommandStore()
	notifier := notify.NewNotifier()
	service, err := relayapp.NewService(store, notifier,
		relayapp.WithPublisher(bus),
		relayapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("relay service error: %v", err)
	}

	broker := relayhttp.NewSSEBroker(service, cfg.RelayCount)
	service.Subscribe(broker)
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhookObserver(cfg.WebhookURL,
			notify.WithWebhookTimeout(cfg.WebhookTimeout),
			notify.WithWebhookLogger(logger),
		)
		if err != nil {
			logger.Fatalf("webhook observer error: %v", err)
		}
		service.Subscribe(webhook)
	}

	if cfg.InFlightTTL > 0 {
		logger.Printf("in-flight expiry enabled: ttl=%s interval=%s", cfg.InFlightTTL, cfg.SweepInterval)
		go service.RunExpiry(ctx, cfg.InFlightTTL, cfg.SweepInterval)
	}

	deviceHandler, err := relayhttp.NewDeviceHandler(service, logger)
	if err != nil {
		logger.Fatalf("device handler error: %v", err)
	}
	controlHandler, err := relayhttp.NewControlHandler(service, cfg.RelayCount, auditLogger)
	if err != nil {
		logger.Fatalf("control handler error: %v", err)
	}
	historyHandler, err := relayhttp.NewHistoryHandler(recorder)
	if err != nil {
		logger.Fatalf("history handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/api/relay", "/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy)
	if !authMiddleware.Enabled() {
		logger.Printf("AUTH_JWT_SECRET not set; control API is unauthenticated")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/relay", deviceHandler)
	mux.Handle("/api/v1/relays", controlHandler)
	mux.Handle("/api/v1/relays/", controlHandler)
	mux.Handle("/api/v1/relays/stream", relayhttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/relays/history", historyHandler)
	mux.Handle("/api/v1/relays/history.xlsx", historyHandler.XLSX())
	mux.Handle("/api/v1/relays/history.pdf", historyHandler.PDF())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s relays=%d", cfg.HTTPAddr, cfg.RelayCount)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
	logger.Printf("http server stopped")
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the relay stream working behind the access log.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
