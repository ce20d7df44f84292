package handler

import (
	"net/http"

	"custody-ledger/internal/adapter/http/middleware"
	"custody-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletStore    ports.WalletStore
	Ledger         ports.LedgerService
	Escrow         ports.EscrowEngine
	Withdrawals    ports.WithdrawalService
	Reconciliation ports.ReconciliationService
	TokenSvc       ports.TokenService
	RateLimiter    middleware.Limiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        http.Handler       // nil = no /metrics route
	AuditSvc       ports.AuditService // nil = denied requests are not audited
	Mode           string             // gin mode; empty = release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(64 << 10))
	r.Use(middleware.RequireJSON())
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditDenied(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimiter == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	anyRole := middleware.RequireRole(ports.RoleService, ports.RoleOperator)
	serviceOnly := middleware.RequireRole(ports.RoleService)
	operatorOnly := middleware.RequireRole(ports.RoleOperator)

	walletHandler := NewWalletHandler(deps.WalletStore, deps.Ledger)
	orderHandler := NewOrderHandler(deps.Escrow)
	withdrawalHandler := NewWithdrawalHandler(deps.Withdrawals)
	reconHandler := NewReconciliationHandler(deps.Reconciliation)

	v1 := r.Group("/api/v1", jwtAuth)

	// --- Reads (service and operator) ---
	reads := v1.Group("", anyRole, rl("service"))
	{
		reads.GET("/wallets/:user_id/balances", walletHandler.GetBalances)
		reads.GET("/wallets/:user_id/ledger", walletHandler.ListLedger)
		reads.GET("/orders/:id", orderHandler.Get)
		reads.GET("/withdrawals", withdrawalHandler.List)
		reads.GET("/withdrawals/:id", withdrawalHandler.Get)
	}

	// --- Collaborating services ---
	svc := v1.Group("", serviceOnly, rl("service"))
	{
		svc.POST("/wallets/:user_id/deposits", walletHandler.Deposit)
		svc.POST("/wallets/:user_id/security", walletHandler.UpdateSecurity)

		svc.POST("/orders", orderHandler.Register)
		svc.POST("/orders/:id/lock", orderHandler.Lock)
		svc.POST("/orders/:id/ship", orderHandler.Ship)
		svc.POST("/orders/:id/release", orderHandler.Release)
		svc.POST("/orders/:id/refund", orderHandler.Refund)
		svc.POST("/orders/:id/dispute", orderHandler.Dispute)
		svc.POST("/orders/:id/cancel", orderHandler.Cancel)

		svc.POST("/withdrawals", rl("withdrawals"), withdrawalHandler.Submit)
		svc.POST("/withdrawals/:id/cancel", withdrawalHandler.Cancel)
	}

	// --- Operators ---
	admin := v1.Group("/admin", operatorOnly, rl("operator"))
	{
		admin.POST("/wallets/:user_id/adjustments", walletHandler.Adjust)
		admin.GET("/wallets/:user_id/verify", walletHandler.VerifyLedger)

		admin.POST("/orders/:id/release", orderHandler.Release)
		admin.POST("/orders/:id/refund", orderHandler.Refund)

		admin.POST("/withdrawals/:id/review", withdrawalHandler.StartReview)
		admin.POST("/withdrawals/:id/approve", withdrawalHandler.Approve)
		admin.POST("/withdrawals/:id/reject", withdrawalHandler.Reject)
		admin.POST("/withdrawals/:id/complete", withdrawalHandler.Complete)

		admin.POST("/reconciliation/run", rl("reconciliation_run"), reconHandler.Run)
		admin.GET("/reconciliation/checks", reconHandler.ListChecks)
		admin.POST("/reconciliation/checks/:id/resolve", reconHandler.Resolve)
	}

	return r
}
