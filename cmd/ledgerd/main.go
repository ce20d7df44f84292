package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"custody-ledger/config"
	httpHandler "custody-ledger/internal/adapter/http/handler"
	kafkaAdapter "custody-ledger/internal/adapter/messaging/kafka"
	"custody-ledger/internal/adapter/metrics"
	redisStorage "custody-ledger/internal/adapter/storage/redis"
	"custody-ledger/internal/core/ports"
	"custody-ledger/internal/jobs"
	"custody-ledger/internal/service"
	"custody-ledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.yaml)")
	issueToken := flag.String("issue-token", "", "print a bearer token for subject:role and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret must be set (CLG_JWT_SECRET)")
		os.Exit(1)
	}
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	if *issueToken != "" {
		os.Exit(printToken(tokenSvc, *issueToken))
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting custody ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage backend
	backend, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer backend.Close()

	// Redis backs both the HTTP rate limiter and the withdrawal velocity guard.
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Audit sink: storage always, Kafka when brokers are configured.
	var publisher ports.AuditPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = kafkaAdapter.NewAuditPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka audit stream enabled")
	}
	auditSvc := service.NewAuditService(backend.audit, publisher, log)

	prom := metrics.NewPrometheus()

	services, err := buildServices(cfg, backend, rateLimitStore, auditSvc, prom, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}

	// Background jobs
	runner := jobs.NewRunner(log)
	if cfg.Reconciliation.Enabled {
		runner.Add(jobs.ReconciliationTask(services.reconciliation,
			cfg.Reconciliation.Interval, cfg.Reconciliation.StartupDelay, cfg.Reconciliation.PassTimeout, log))
	}
	if cfg.Escrow.FinalizeEnabled {
		runner.Add(jobs.FinalizeTask(services.escrow,
			cfg.Escrow.FinalizeEvery, cfg.Escrow.FinalizeBatch, func() time.Time { return time.Now().UTC() }, log))
	}
	runner.Start(ctx)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletStore:    services.wallets,
		Ledger:         services.ledger,
		Escrow:         services.escrow,
		Withdrawals:    services.withdrawals,
		Reconciliation: services.reconciliation,
		TokenSvc:       tokenSvc,
		RateLimiter:    rateLimitStore,
		HealthCheckers: append(backend.health, redisStorage.NewHealthCheck(rdb)),
		Metrics:        prom.Handler(),
		AuditSvc:       auditSvc,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	runner.Wait()

	auditSvc.Flush()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Closing audit publisher")
		}
	}

	log.Info().Msg("Server exited")
}

// printToken writes a bearer token for "subject:role" to stdout.
func printToken(tokens ports.TokenService, arg string) int {
	subject, role, ok := strings.Cut(arg, ":")
	r := ports.Role(role)
	if !ok || subject == "" || (r != ports.RoleService && r != ports.RoleOperator) {
		fmt.Fprintln(os.Stderr, "issue-token expects subject:service or subject:operator")
		return 2
	}
	tok, exp, err := tokens.Generate(subject, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generating token: %v\n", err)
		return 1
	}
	fmt.Printf("%s\n# expires %s\n", tok, exp.UTC().Format(time.RFC3339))
	return 0
}
