package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so callers can compare against the constructors:
// errors.Is(err, apperror.ErrInsufficientBalance()).
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Outcome flattens an operation result into the (ok, message) pair handed to
// order, dispute and admin collaborators.
func Outcome(err error) (bool, string) {
	if err == nil {
		return true, "ok"
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return false, appErr.Message
	}
	return false, "Internal server error"
}

// CodeOf returns the AppError code carried by err, or "" for foreign errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Wallet (WAL) ----

func ErrWalletNotFound() *AppError {
	return New("WAL_001", "Wallet not found", http.StatusNotFound)
}

func ErrUnsupportedCurrency(currency string) *AppError {
	return New("WAL_002", fmt.Sprintf("Unsupported currency %q", currency), http.StatusBadRequest)
}

func ErrInsufficientBalance() *AppError {
	return New("WAL_003", "Insufficient balance in wallet", http.StatusPaymentRequired)
}

func ErrInsufficientEscrow() *AppError {
	return New("WAL_004", "Insufficient escrow balance", http.StatusConflict)
}

func ErrInvalidAmount() *AppError {
	return New("WAL_005", "Invalid amount", http.StatusBadRequest)
}

// ---- Escrow (ESC) ----

func ErrInvalidStateTransition(from, action string) *AppError {
	return New("ESC_001", fmt.Sprintf("Cannot %s from state %s", action, from), http.StatusConflict)
}

func ErrOrderNotFound() *AppError {
	return New("ESC_002", "Order not found", http.StatusNotFound)
}

func ErrInvalidRefundPercent() *AppError {
	return New("ESC_003", "Refund percent must be between 0 and 100", http.StatusBadRequest)
}

// ---- Withdrawals (WDR) ----

func ErrWithdrawalNotFound() *AppError {
	return New("WDR_001", "Withdrawal request not found", http.StatusNotFound)
}

func ErrInvalidPIN() *AppError {
	return New("WDR_002", "Invalid withdrawal PIN", http.StatusForbidden)
}

func ErrInvalidSecondFactor() *AppError {
	return New("WDR_003", "Invalid second factor code", http.StatusForbidden)
}

func ErrDailyLimitExceeded() *AppError {
	return New("WDR_004", "Daily withdrawal limit exceeded", http.StatusUnprocessableEntity)
}

func ErrInvalidAddress() *AppError {
	return New("WDR_005", "Invalid destination address", http.StatusBadRequest)
}

// ---- Reconciliation (REC) ----

func ErrReconciliationDiscrepancy(details string) *AppError {
	return New("REC_001", "Balance discrepancy detected: "+details, http.StatusOK)
}

func ErrCheckNotFound() *AppError {
	return New("REC_002", "Balance check not found", http.StatusNotFound)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_005", "Insufficient role for this operation", http.StatusForbidden)
}

// ---- Request (REQ) ----

func ErrUnsupportedMediaType() *AppError {
	return New("REQ_001", "Content-Type must be application/json", http.StatusUnsupportedMediaType)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// ErrConcurrentModification is reserved for an optimistic storage backend.
// Both shipped backends lock rows pessimistically and never return it.
func ErrConcurrentModification() *AppError {
	return New("SYS_004", "Concurrent modification, retry", http.StatusConflict)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a WAL_005-style validation error.
func Validation(message string) *AppError {
	return New("WAL_005", message, http.StatusBadRequest)
}
