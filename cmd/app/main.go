// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"bookmarks-billing/internal/config"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	payAdapters "bookmarks-billing/internal/infra/adapters/payment"
	"bookmarks-billing/internal/infra/api"
	pg "bookmarks-billing/internal/infra/db/postgres"
	"bookmarks-billing/internal/infra/kafka"
	"bookmarks-billing/internal/infra/logging"
	"bookmarks-billing/internal/infra/metrics"
	red "bookmarks-billing/internal/infra/redis"
	"bookmarks-billing/internal/infra/sched"
	"bookmarks-billing/internal/infra/security"
	"bookmarks-billing/internal/infra/web"
	"bookmarks-billing/internal/infra/worker"
	"bookmarks-billing/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, noop wallet fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting bookmarks-billing")

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped with error")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	pending := red.NewPendingOrderRepo(redisClient)
	limiter := red.NewRateLimiter(redisClient, "ratelimit")

	// ---- Encryption ----
	var sealer usecase.PayloadSealer
	if cfg.Security.EncryptionKey != "" {
		encSvc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
		sealer = encSvc
	} else {
		logger.Warn().Msg("security.encryption_key not set; raw provider payloads will not be stored")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	txRepo := pg.NewTransactionRepo(pool)

	// ---- Providers ----
	timeout := cfg.Payment.ProviderTimeout
	var adapters []adapter.ProviderAdapter
	verifiers := map[model.Provider]adapter.Verifier{}

	if cfg.Payment.Stripe.SecretKey != "" {
		sc, err := payAdapters.NewStripeClient(cfg.Payment.Stripe.SecretKey, cfg.Payment.Stripe.BaseURL, timeout)
		if err != nil {
			return fmt.Errorf("stripe: %w", err)
		}
		adapters = append(adapters, payAdapters.NewStripeAdapter(sc, timeout, logger))
		verifiers[model.ProviderStripe] = payAdapters.ProviderSourcedVerifier{Provider: model.ProviderStripe}
	} else {
		logger.Warn().Msg("payment.stripe.secret_key not set; stripe notifications disabled")
	}

	wallet, err := newWallet(cfg, logger)
	if err != nil {
		return err
	}
	adapters = append(adapters, payAdapters.NewPayPalAdapter(wallet, pending, timeout, logger))
	verifiers[model.ProviderPayPal] = payAdapters.ProviderSourcedVerifier{Provider: model.ProviderPayPal}

	if cfg.Payment.Alipay.PublicKey != "" {
		ac := cfg.Payment.Alipay
		av, err := payAdapters.NewAlipayVerifier(ac.AppID, ac.PrivateKey, ac.PublicKey)
		if err != nil {
			return fmt.Errorf("alipay: %w", err)
		}
		adapters = append(adapters, payAdapters.NewAlipayAdapter("CNY", logger))
		verifiers[model.ProviderAlipay] = av
	} else {
		logger.Warn().Msg("payment.alipay.public_key not set; alipay notifications disabled")
	}

	// ---- Kafka ----
	kafkaPub, err := kafka.NewPublisher(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	publishPool := worker.NewPool(2, 256, logger)
	publishPool.Start(ctx)
	publisher := worker.NewAsyncPublisher(kafkaPub, publishPool, 10*time.Second)
	defer publisher.Close()

	// ---- Use cases ----
	notifUC := usecase.NewNotificationUseCase(usecase.NotificationDeps{
		Adapters:   adapters,
		Verifiers:  verifiers,
		TxManager:  tm,
		Locker:     tm,
		Gate:       usecase.NewIdempotencyGate(txRepo),
		Reconciler: usecase.NewReconciler(subRepo, logger),
		Ledger:     usecase.NewLedgerWriter(txRepo, feeSchedules(cfg.Payment.Fees), sealer, logger),
		Publisher:  publisher,
	}, logger)
	checkoutUC := usecase.NewCheckoutUseCase(wallet, pending, priceCatalog(cfg.Payment), usecase.CheckoutURLs{
		ReturnURL: cfg.Payment.PayPal.ReturnURL,
		CancelURL: cfg.Payment.PayPal.CancelURL,
	}, cfg.Redis.TTL, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, txRepo, logger)

	// ---- HTTP ----
	var auth *web.AuthManager
	if cfg.Admin.JWTSecret != "" {
		auth = web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	} else {
		logger.Warn().Msg("admin.jwt_secret not set; admin API will refuse every request")
	}
	payments := api.NewServer(notifUC, checkoutUC, limiter, api.CheckoutLimit{}, logger)
	admin := web.NewServer(subUC, auth, logger)
	router := api.NewRouter(logger, cfg.HTTP.RequestTimeout, map[string]api.HealthCheck{
		"postgres": pool.Ping,
		"redis":    redisClient.Ping,
	}, payments.Routes, admin.Routes)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ---- Expiry worker ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, subUC, subUC, logger)
	go func() { _ = expiry.Run(ctx) }()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newWallet returns the PayPal client, or an in-memory wallet in dev mode
// when no credentials are configured.
func newWallet(cfg *config.Config, logger *zerolog.Logger) (adapter.WalletClient, error) {
	pp := cfg.Payment.PayPal
	if pp.ClientID == "" || pp.ClientSecret == "" {
		if !cfg.Runtime.Dev {
			return nil, errors.New("payment.paypal credentials are required outside dev mode")
		}
		logger.Warn().Msg("paypal credentials not set; using in-memory wallet")
		return payAdapters.NewNoopWallet(), nil
	}
	w, err := payAdapters.NewPayPalWallet(pp.ClientID, pp.ClientSecret, payAdapters.PayPalAPIBase(pp.Sandbox))
	if err != nil {
		return nil, fmt.Errorf("paypal: %w", err)
	}
	return w, nil
}

func feeSchedules(in map[string]config.FeeConfig) map[model.Provider]usecase.FeeSchedule {
	out := make(map[model.Provider]usecase.FeeSchedule, len(in))
	for name, f := range in {
		p, err := model.ParseProvider(name)
		if err != nil {
			continue
		}
		out[p] = usecase.FeeSchedule{PercentBps: f.PercentBps, FixedMinor: f.FixedMinor}
	}
	return out
}

func priceCatalog(pc config.PaymentConfig) usecase.PriceCatalog {
	plans := make(map[model.PlanType]usecase.PlanPrice, len(pc.Plans))
	for name, p := range pc.Plans {
		pt, err := model.ParsePlanType(name)
		if err != nil {
			continue
		}
		plans[pt] = usecase.PlanPrice{Monthly: p.Monthly, Yearly: p.Yearly}
	}
	return usecase.PriceCatalog{Currency: pc.Currency, Plans: plans}
}
