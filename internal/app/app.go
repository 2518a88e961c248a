// Package app wires the promo service: database, repositories,
// processors, domain services, HTTP surface, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/vendor-promo/internal/domain/promo"
	"github.com/xenking/vendor-promo/internal/handler"
	"github.com/xenking/vendor-promo/internal/processor"
	"github.com/xenking/vendor-promo/internal/processor/stripepromo"
	"github.com/xenking/vendor-promo/internal/processor/vouchery"
	"github.com/xenking/vendor-promo/internal/storage/postgres"
	"github.com/xenking/vendor-promo/pkg/health"
	"github.com/xenking/vendor-promo/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles
// graceful shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	offerRepo := postgres.NewOfferRepository(pool)
	campaignRepo := postgres.NewCampaignRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	profileRepo := postgres.NewProfileRepository(pool)
	siteConfigRepo := postgres.NewSiteConfigRepository(pool)
	affiliateRepo := postgres.NewAffiliateRepository(pool)
	ledger := postgres.NewRedemptionLedger(pool)
	txManager := postgres.NewTxManager(pool)

	// Processors. The base processor is always available; remote backends
	// register only when credentials are configured.
	base := processor.NewBase(campaignRepo, couponRepo, offerRepo, ledger)

	resolver := processor.NewResolver(siteConfigRepo, cfg.DefaultProcessor)
	resolver.Register(processor.BaseName, func(string) (processor.Processor, error) {
		return base, nil
	})
	if cfg.Vouchery.URL != "" {
		client := vouchery.NewClient(cfg.Vouchery.URL, cfg.Vouchery.Key)
		resolver.Register(vouchery.Name, func(string) (processor.Processor, error) {
			return vouchery.New(base, client), nil
		})
	}
	if cfg.Stripe.Key != "" {
		client := stripepromo.NewClient(cfg.Stripe.URL, cfg.Stripe.Key)
		resolver.Register(stripepromo.Name, func(string) (processor.Processor, error) {
			return stripepromo.New(base, client, cfg.Stripe.Currency), nil
		})
	}

	// Domain services.
	gate := promo.NewGate(couponRepo, ledger, profileRepo)
	service := promo.NewService(gate, invoiceRepo, couponRepo, ledger, resolver, txManager)

	// HTTP surface: health endpoints + API routes on one server.
	h := handler.NewHandler(service, resolver, campaignRepo, couponRepo, affiliateRepo)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	apiHandler := otelhttp.NewHandler(mux, "promo-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(apiHandler,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
