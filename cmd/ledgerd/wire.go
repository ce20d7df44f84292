package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"custody-ledger/config"
	"custody-ledger/internal/adapter/storage/memory"
	pgStorage "custody-ledger/internal/adapter/storage/postgres"
	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// storage is the repository set of the selected backend.
type storage struct {
	wallets     ports.WalletRepository
	ledger      ports.LedgerRepository
	orders      ports.OrderRepository
	withdrawals ports.WithdrawalRepository
	checks      ports.BalanceCheckRepository
	audit       ports.AuditRepository
	transactor  ports.DBTransactor
	health      []ports.HealthChecker
	close       func()
}

func (s *storage) Close() {
	if s.close != nil {
		s.close()
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage; balances are lost on restart")
		st := memory.NewStore(cfg.Database.LockTimeout)
		return &storage{
			wallets:     st.Wallets(),
			ledger:      st.Ledger(),
			orders:      st.Orders(),
			withdrawals: st.Withdrawals(),
			checks:      st.Checks(),
			audit:       st.AuditLogs(),
			transactor:  st.Transactor(),
			health:      []ports.HealthChecker{st.HealthChecker()},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := pgStorage.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info().Msg("PostgreSQL connected and schema applied")

	return &storage{
		wallets:     pgStorage.NewWalletRepo(pool),
		ledger:      pgStorage.NewLedgerRepo(pool),
		orders:      pgStorage.NewOrderRepo(pool),
		withdrawals: pgStorage.NewWithdrawalRepo(pool),
		checks:      pgStorage.NewBalanceCheckRepo(pool),
		audit:       pgStorage.NewAuditRepo(pool),
		transactor:  pgStorage.NewTransactor(pool, cfg.Database.LockTimeout),
		health:      []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
		close:       pool.Close,
	}, nil
}

type serviceSet struct {
	wallets        *service.WalletStoreImpl
	ledger         *service.LedgerServiceImpl
	escrow         *service.EscrowEngineImpl
	withdrawals    *service.WithdrawalServiceImpl
	reconciliation *service.ReconciliationServiceImpl
}

func buildServices(
	cfg *config.Config,
	st *storage,
	velocity ports.VelocityGuard,
	audit ports.AuditService,
	m ports.Metrics,
	log zerolog.Logger,
) (*serviceSet, error) {
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption service: %w", err)
	}
	hashSvc := service.NewArgon2HashService()

	ledgerSvc := service.NewLedgerService(st.ledger, service.NewLedgerHasher(cfg.Ledger.HashKey), component(log, "ledger"))
	walletStore := service.NewWalletStore(st.wallets, ledgerSvc, st.transactor, hashSvc, encSvc, audit, m, component(log, "wallets"))

	escrowSettings, err := escrowSettings(cfg.Escrow)
	if err != nil {
		return nil, err
	}
	escrow := service.NewEscrowEngine(st.orders, walletStore, st.transactor, audit, m, escrowSettings, component(log, "escrow"))

	largeBTC, err := parseDecimal("risk.large_amount_btc", cfg.Risk.LargeAmountBTC)
	if err != nil {
		return nil, err
	}
	largeXMR, err := parseDecimal("risk.large_amount_xmr", cfg.Risk.LargeAmountXMR)
	if err != nil {
		return nil, err
	}
	withdrawals := service.NewWithdrawalService(service.WithdrawalDeps{
		Repo:       st.withdrawals,
		Wallets:    walletStore,
		Ledger:     ledgerSvc,
		Risk:       service.NewRiskEngine(largeBTC, largeXMR),
		Velocity:   velocity,
		Accounts:   service.NewWalletAccountDirectory(st.wallets),
		Hasher:     hashSvc,
		Encryption: encSvc,
		OTP:        service.NewTOTPVerifier(),
		Transactor: st.transactor,
		Audit:      audit,
		Metrics:    m,
	}, service.WithdrawalSettings{
		VelocityLimit:  cfg.Withdrawal.VelocityLimit,
		VelocityWindow: cfg.Withdrawal.VelocityWindow,
		AutoApprove:    cfg.Withdrawal.AutoApprove,
	}, component(log, "withdrawals"))

	reconSettings, err := reconciliationSettings(cfg.Reconciliation)
	if err != nil {
		return nil, err
	}
	alerts := service.NewAlertNotifier(service.AlertSettings{
		WebhookURL: cfg.Alert.WebhookURL,
		MaxRetries: cfg.Alert.MaxRetries,
		RetryBase:  500 * time.Millisecond,
	}, &http.Client{Timeout: cfg.Alert.Timeout}, component(log, "alerts"))
	recon := service.NewReconciliationService(st.wallets, ledgerSvc, st.checks, st.transactor, alerts, audit, m,
		reconSettings, component(log, "reconciliation"))

	return &serviceSet{
		wallets:        walletStore,
		ledger:         ledgerSvc,
		escrow:         escrow,
		withdrawals:    withdrawals,
		reconciliation: recon,
	}, nil
}

func escrowSettings(c config.EscrowConfig) (service.EscrowSettings, error) {
	fee, err := parseDecimal("escrow.fee_percent", c.FeePercent)
	if err != nil {
		return service.EscrowSettings{}, err
	}
	s := service.EscrowSettings{FeePercent: fee, AutoFinalize: c.AutoFinalize}
	if c.FeeAccountID != "" {
		id, err := uuid.Parse(c.FeeAccountID)
		if err != nil {
			return service.EscrowSettings{}, fmt.Errorf("escrow.fee_account_id: %w", err)
		}
		s.FeeAccountID = &id
	}
	return s, nil
}

func reconciliationSettings(c config.ReconciliationConfig) (service.ReconciliationSettings, error) {
	s := service.ReconciliationSettings{
		PageSize:     c.PageSize,
		MaxWallets:   c.MaxWalletsPass,
		AutoFix:      c.AutoFix,
		RecordClean:  c.RecordClean,
		AlertOnMajor: c.AlertOnMajor,
		Minor:        map[domain.Currency]decimal.Decimal{},
		Alert:        map[domain.Currency]decimal.Decimal{},
	}
	for _, t := range []struct {
		key string
		raw string
		cur domain.Currency
		dst map[domain.Currency]decimal.Decimal
	}{
		{"reconciliation.minor_btc", c.MinorBTC, domain.CurrencyBTC, s.Minor},
		{"reconciliation.minor_xmr", c.MinorXMR, domain.CurrencyXMR, s.Minor},
		{"reconciliation.alert_btc", c.AlertBTC, domain.CurrencyBTC, s.Alert},
		{"reconciliation.alert_xmr", c.AlertXMR, domain.CurrencyXMR, s.Alert},
	} {
		d, err := parseDecimal(t.key, t.raw)
		if err != nil {
			return service.ReconciliationSettings{}, err
		}
		t.dst[t.cur] = d
	}
	return s, nil
}

func parseDecimal(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
