package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sfhttp "github.com/Strob0t/StockForge/internal/adapter/http"
	sfnats "github.com/Strob0t/StockForge/internal/adapter/nats"
	"github.com/Strob0t/StockForge/internal/adapter/natskv"
	sfotel "github.com/Strob0t/StockForge/internal/adapter/otel"
	"github.com/Strob0t/StockForge/internal/adapter/ristretto"
	"github.com/Strob0t/StockForge/internal/adapter/tiered"
	"github.com/Strob0t/StockForge/internal/adapter/ws"
	"github.com/Strob0t/StockForge/internal/config"
	"github.com/Strob0t/StockForge/internal/logger"
	"github.com/Strob0t/StockForge/internal/middleware"
	"github.com/Strob0t/StockForge/internal/resilience"
	"github.com/Strob0t/StockForge/internal/secrets"
	"github.com/Strob0t/StockForge/internal/service"
)

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		err = runAdmin(os.Args[2:])
	} else {
		err = run(os.Args[1:])
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"log_level", cfg.Logging.Level,
		"auth_enabled", cfg.Auth.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownOTEL, err := sfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := sfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	st, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer st.close()

	queue, err := sfnats.Connect(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	dirKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("l2 cache: %w", err)
	}
	l2Breaker := resilience.NewBreaker("l2-cache", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	directoryCache := tiered.New(l1, natskv.New(dirKV), cfg.Cache.L2TTL, l2Breaker)

	idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}

	// --- Services ---
	hub := ws.NewHub(originHost(cfg.Server.CORSOrigin))

	breaker := resilience.NewBreaker("events", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	gauges := []struct {
		name, desc string
		fn         func() float64
	}{
		{"stockforge.cache.l1.hit_ratio", "Hit ratio of the in-process location directory cache", l1.HitRatio},
		{"stockforge.ws.connections", "Open WebSocket connections", func() float64 { return float64(hub.ConnectionCount()) }},
		{"stockforge.breaker.events.open", "1 while event publishing is short-circuited", breaker.IsOpen},
		{"stockforge.breaker.l2_cache.open", "1 while the shared directory cache is bypassed", l2Breaker.IsOpen},
	}
	for _, g := range gauges {
		if err := sfotel.RegisterGauge(g.name, g.desc, g.fn); err != nil {
			return fmt.Errorf("gauge %s: %w", g.name, err)
		}
	}
	events := service.NewEventPublisher(queue, hub, breaker, metrics)

	ledgerSvc := service.NewLedgerService(st.store, events, metrics)
	reservationSvc := service.NewReservationService(st.store, events, metrics, cfg.Sweeper)
	locationSvc := service.NewLocationService(st.store, directoryCache, cfg.Cache.L2TTL)
	provisioningSvc := service.NewProvisioningService(st.store, locationSvc, metrics, cfg.Provisioning.Concurrency)
	tokenSvc, err := newTokenService(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	cancelProducts, err := provisioningSvc.Subscribe(ctx, queue, cfg.NATS.ProductSubject)
	if err != nil {
		return fmt.Errorf("product subscriber: %w", err)
	}
	defer cancelProducts()

	sweeper := service.NewExpirySweeper(reservationSvc, cfg.Sweeper.Interval, metrics)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// --- HTTP ---
	checks := map[string]sfhttp.ReadinessCheck{
		"nats": func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		},
	}
	if st.ping != nil {
		checks["postgres"] = st.ping
	}
	handlers := &sfhttp.Handlers{
		Ledger:       ledgerSvc,
		Reservations: reservationSvc,
		Locations:    locationSvc,
		Checks:       checks,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(sfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(sfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(sfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.Auth(tokenSvc, cfg.Auth.Enabled))
	r.Use(limiter.Handler)

	// WebSocket endpoint (outside the request timeout)
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(sfhttp.SecurityHeaders)
		r.Use(chimw.Timeout(30 * time.Second))
		sfhttp.MountRoutes(r, handlers, middleware.Idempotency(natskv.New(idemKV), cfg.Idempotency.TTL))
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	hub.Close()
	sweeper.Stop()
	if drainErr := queue.Drain(); drainErr != nil {
		slog.Warn("nats drain", "error", drainErr)
	}
	return err
}

// originHost turns a CORS origin URL into the host pattern the WebSocket
// upgrade checks against. An empty or unparsable origin disables the check.
func originHost(origin string) string {
	if origin == "" || origin == "*" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

// newTokenService loads the signing keyring and reloads it on SIGHUP so the
// JWT secret can be rotated without a restart.
func newTokenService(ctx context.Context, cfg config.Auth) (*service.TokenService, error) {
	if !cfg.Enabled {
		return service.NewTokenService(cfg), nil
	}
	keys, err := secrets.NewKeyring(secrets.EnvLoader("STOCKFORGE_JWT_SECRET", "STOCKFORGE_JWT_SECRET_PREVIOUS", cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := keys.Reload(); err != nil {
					slog.Error("signing key reload failed", "error", err)
					continue
				}
				slog.Info("signing keys reloaded")
			}
		}
	}()
	return service.NewTokenServiceWithKeys(cfg, keys), nil
}
