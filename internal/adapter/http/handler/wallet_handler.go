package handler

import (
	"custody-ledger/internal/adapter/http/dto"
	"custody-ledger/internal/adapter/http/middleware"
	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet and ledger endpoints.
type WalletHandler struct {
	store  ports.WalletStore
	ledger ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(store ports.WalletStore, ledger ports.LedgerService) *WalletHandler {
	return &WalletHandler{store: store, ledger: ledger}
}

// GetBalances handles GET /api/v1/wallets/:user_id/balances.
func (h *WalletHandler) GetBalances(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	w, err := h.store.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(w))
}

// ListLedger handles GET /api/v1/wallets/:user_id/ledger.
func (h *WalletHandler) ListLedger(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var q dto.LedgerQuery
	if !bindQuery(c, &q) {
		return
	}

	params := ports.LedgerListParams{
		UserID:   userID,
		From:     optionalTime(q.From),
		To:       optionalTime(q.To),
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if cur, ok := domain.ParseCurrency(q.Currency); ok {
		params.Currency = &cur
	}
	if q.Type != "" {
		t := domain.EntryType(q.Type)
		params.Type = &t
	}

	entries, total, err := h.ledger.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	response.OK(c, dto.NewListResponse(entries, total, q.Page, q.PageSize))
}

// Deposit handles POST /api/v1/wallets/:user_id/deposits.
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var req dto.DepositRequest
	if !bindJSON(c, &req) {
		return
	}
	cur, _ := domain.ParseCurrency(req.Currency)

	entry, err := h.store.AddFunds(c.Request.Context(), userID, cur, mustDecimal(req.Amount), req.Source)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// UpdateSecurity handles POST /api/v1/wallets/:user_id/security.
func (h *WalletHandler) UpdateSecurity(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var req dto.SecurityRequest
	if !bindJSON(c, &req) {
		return
	}

	err := h.store.SetSecurity(c.Request.Context(), ports.SecurityUpdate{
		UserID:        userID,
		PIN:           req.PIN,
		OTPSecret:     req.OTPSecret,
		DailyLimitBTC: optionalDecimal(req.DailyLimitBTC),
		DailyLimitXMR: optionalDecimal(req.DailyLimitXMR),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Withdrawal security updated", nil)
}

// Adjust handles POST /api/v1/admin/wallets/:user_id/adjustments.
func (h *WalletHandler) Adjust(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}
	var req dto.AdjustmentRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)
	cur, _ := domain.ParseCurrency(req.Currency)

	entry, err := h.store.Adjust(c.Request.Context(), userID, cur, mustDecimal(req.Amount), req.Reason, middleware.Subject(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// VerifyLedger handles GET /api/v1/admin/wallets/:user_id/verify.
func (h *WalletHandler) VerifyLedger(c *gin.Context) {
	userID, ok := uuidParam(c, "user_id")
	if !ok {
		return
	}

	bad, err := h.ledger.VerifyUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	ids := make([]string, 0, len(bad))
	for _, id := range bad {
		ids = append(ids, id.String())
	}
	response.OK(c, dto.VerifyResponse{
		UserID:     userID.String(),
		Intact:     len(ids) == 0,
		TamperedID: ids,
	})
}
