package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"custody-ledger/config"
	httpHandler "custody-ledger/internal/adapter/http/handler"
	redisStorage "custody-ledger/internal/adapter/storage/redis"
	"custody-ledger/internal/core/ports"
	"custody-ledger/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	server   *httptest.Server
	svcToken string
	opToken  string
}

type envelope struct {
	OK        bool            `json:"ok"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
}

type balancesData struct {
	Balances []struct {
		Currency  string          `json:"currency"`
		Balance   decimal.Decimal `json:"balance"`
		Escrow    decimal.Decimal `json:"escrow"`
		Available decimal.Decimal `json:"available"`
	} `json:"balances"`
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Driver = "memory"
	cfg.Database.LockTimeout = 5 * time.Second
	cfg.AES.Key = strings.Repeat("ab", 32)
	cfg.Ledger.HashKey = "e2e-ledger-key"
	cfg.JWT.Secret = "e2e-secret-e2e-secret-e2e-secret"

	log := zerolog.Nop()
	st, err := openStorage(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	limiter := redisStorage.NewRateLimitStore(rdb)

	auditSvc := service.NewAuditService(st.audit, nil, log)
	t.Cleanup(auditSvc.Flush)

	svcs, err := buildServices(cfg, st, limiter, auditSvc, nil, log)
	require.NoError(t, err)

	tokens := service.NewJWTTokenService(cfg.JWT.Secret, time.Hour, "e2e")
	svcToken, _, err := tokens.Generate("order-service", ports.RoleService)
	require.NoError(t, err)
	opToken, _, err := tokens.Generate("alice", ports.RoleOperator)
	require.NoError(t, err)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletStore:    svcs.wallets,
		Ledger:         svcs.ledger,
		Escrow:         svcs.escrow,
		Withdrawals:    svcs.withdrawals,
		Reconciliation: svcs.reconciliation,
		TokenSvc:       tokens,
		RateLimiter:    limiter,
		HealthCheckers: append(st.health, redisStorage.NewHealthCheck(rdb)),
		AuditSvc:       auditSvc,
		Mode:           gin.TestMode,
		Logger:         log,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testApp{server: srv, svcToken: svcToken, opToken: opToken}
}

func (a *testApp) call(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (a *testApp) deposit(t *testing.T, userID uuid.UUID, amount, source string) {
	t.Helper()
	status, env := a.call(t, http.MethodPost, "/api/v1/wallets/"+userID.String()+"/deposits", a.svcToken,
		map[string]string{"currency": "btc", "amount": amount, "source": source})
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
}

func (a *testApp) btc(t *testing.T, userID uuid.UUID) (balance, escrow decimal.Decimal) {
	t.Helper()
	status, env := a.call(t, http.MethodGet, "/api/v1/wallets/"+userID.String()+"/balances", a.svcToken, nil)
	require.Equal(t, http.StatusOK, status, env.ErrorCode)
	var data balancesData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	for _, b := range data.Balances {
		if b.Currency == "btc" {
			return b.Balance, b.Escrow
		}
	}
	t.Fatalf("no btc balance for %s", userID)
	return
}

func (a *testApp) registerOrder(t *testing.T, buyer, vendor uuid.UUID, total string) uuid.UUID {
	t.Helper()
	orderID := uuid.New()
	status, env := a.call(t, http.MethodPost, "/api/v1/orders", a.svcToken, map[string]string{
		"order_id": orderID.String(), "buyer_id": buyer.String(), "vendor_id": vendor.String(),
		"currency": "btc", "total": total,
	})
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)
	return orderID
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestEscrowLifecycle(t *testing.T) {
	app := newTestApp(t)
	buyer, vendor := uuid.New(), uuid.New()

	app.deposit(t, buyer, "1", "txid-1")
	orderID := app.registerOrder(t, buyer, vendor, "0.4")

	for _, step := range []string{"lock", "ship", "release"} {
		status, env := app.call(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/"+step, app.svcToken, nil)
		require.Equal(t, http.StatusOK, status, "%s: %s", step, env.ErrorCode)
	}

	balance, escrow := app.btc(t, buyer)
	assertDecimal(t, "0.6", balance)
	assertDecimal(t, "0", escrow)

	// 2% marketplace fee is withheld from the vendor payout.
	balance, _ = app.btc(t, vendor)
	assertDecimal(t, "0.392", balance)

	status, env := app.call(t, http.MethodGet, "/api/v1/orders/"+orderID.String(), app.svcToken, nil)
	require.Equal(t, http.StatusOK, status)
	var order struct {
		Status         string `json:"status"`
		EscrowReleased bool   `json:"escrow_released"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "completed", order.Status)
	assert.True(t, order.EscrowReleased)

	// A second release must not pay out twice.
	status, _ = app.call(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/release", app.svcToken, nil)
	assert.NotEqual(t, http.StatusOK, status)
	balance, _ = app.btc(t, vendor)
	assertDecimal(t, "0.392", balance)

	status, env = app.call(t, http.MethodGet, "/api/v1/admin/wallets/"+buyer.String()+"/verify", app.opToken, nil)
	require.Equal(t, http.StatusOK, status)
	var verify struct {
		Intact bool `json:"intact"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &verify))
	assert.True(t, verify.Intact)
}

func TestPartialRefund(t *testing.T) {
	app := newTestApp(t)
	buyer, vendor := uuid.New(), uuid.New()

	app.deposit(t, buyer, "1", "txid-1")
	orderID := app.registerOrder(t, buyer, vendor, "0.5")
	status, _ := app.call(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/lock", app.svcToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := app.call(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/refund", app.svcToken,
		map[string]string{"percent": "40"})
	require.Equal(t, http.StatusOK, status, env.ErrorCode)

	balance, escrow := app.btc(t, buyer)
	assertDecimal(t, "0.7", balance)
	assertDecimal(t, "0", escrow)
	balance, _ = app.btc(t, vendor)
	assertDecimal(t, "0.3", balance)
}

func TestConcurrentDeposits(t *testing.T) {
	app := newTestApp(t)
	user := uuid.New()
	app.deposit(t, user, "0.01", "txid-seed")

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]string{"currency": "btc", "amount": "0.01", "source": fmt.Sprintf("txid-%d", i)})
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/wallets/"+user.String()+"/deposits", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+app.svcToken)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err.Error()
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				errs <- fmt.Sprintf("status %d", resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}

	balance, _ := app.btc(t, user)
	assertDecimal(t, "0.41", balance)
}

func TestConcurrentLocksCannotOverspend(t *testing.T) {
	app := newTestApp(t)
	buyer, vendor := uuid.New(), uuid.New()
	app.deposit(t, buyer, "1", "txid-1")

	const orders = 10
	ids := make([]uuid.UUID, orders)
	for i := range ids {
		ids[i] = app.registerOrder(t, buyer, vendor, "0.25")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		locked   int
		rejected int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/orders/"+id.String()+"/lock", nil)
			req.Header.Set("Authorization", "Bearer "+app.svcToken)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			mu.Lock()
			defer mu.Unlock()
			switch resp.StatusCode {
			case http.StatusOK:
				locked++
			case http.StatusPaymentRequired:
				rejected++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 4, locked)
	assert.Equal(t, 6, rejected)

	balance, escrow := app.btc(t, buyer)
	assertDecimal(t, "0", balance)
	assertDecimal(t, "1", escrow)
}

func TestRoleSeparation(t *testing.T) {
	app := newTestApp(t)
	user := uuid.New()

	status, env := app.call(t, http.MethodPost, "/api/v1/admin/wallets/"+user.String()+"/adjustments", app.svcToken,
		map[string]string{"currency": "btc", "amount": "1", "reason": "bonus"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.OK)

	status, _ = app.call(t, http.MethodGet, "/api/v1/wallets/"+user.String()+"/balances", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = app.call(t, http.MethodPost, "/api/v1/admin/wallets/"+user.String()+"/adjustments", app.opToken,
		map[string]string{"currency": "btc", "amount": "1", "reason": "migration"})
	require.Equal(t, http.StatusCreated, status, env.ErrorCode)

	balance, _ := app.btc(t, user)
	assertDecimal(t, "1", balance)
}

func TestReconciliationRunIsClean(t *testing.T) {
	app := newTestApp(t)
	buyer, vendor := uuid.New(), uuid.New()
	app.deposit(t, buyer, "2", "txid-1")
	orderID := app.registerOrder(t, buyer, vendor, "0.5")
	status, _ := app.call(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/lock", app.svcToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := app.call(t, http.MethodPost, "/api/v1/admin/reconciliation/run", app.opToken, nil)
	require.Equal(t, http.StatusOK, status, env.ErrorCode)

	status, env = app.call(t, http.MethodGet, "/api/v1/admin/reconciliation/checks?only_discrepancy=true", app.opToken, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Zero(t, list.Total)
}
