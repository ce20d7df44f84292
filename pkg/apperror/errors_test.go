package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("WAL_003", "Insufficient balance", http.StatusPaymentRequired),
			expected: "[WAL_003] Insufficient balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("move to escrow: %w", ErrInsufficientBalance())

	assert.True(t, errors.Is(err, ErrInsufficientBalance()))
	assert.False(t, errors.Is(err, ErrInsufficientEscrow()))
}

func TestWalletErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"WalletNotFound", ErrWalletNotFound(), "WAL_001", 404},
		{"UnsupportedCurrency", ErrUnsupportedCurrency("eth"), "WAL_002", 400},
		{"InsufficientBalance", ErrInsufficientBalance(), "WAL_003", 402},
		{"InsufficientEscrow", ErrInsufficientEscrow(), "WAL_004", 409},
		{"InvalidAmount", ErrInvalidAmount(), "WAL_005", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestEscrowAndWithdrawalErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidStateTransition", ErrInvalidStateTransition("pending", "release"), "ESC_001", 409},
		{"OrderNotFound", ErrOrderNotFound(), "ESC_002", 404},
		{"WithdrawalNotFound", ErrWithdrawalNotFound(), "WDR_001", 404},
		{"InvalidPIN", ErrInvalidPIN(), "WDR_002", 403},
		{"InvalidSecondFactor", ErrInvalidSecondFactor(), "WDR_003", 403},
		{"DailyLimitExceeded", ErrDailyLimitExceeded(), "WDR_004", 422},
		{"CheckNotFound", ErrCheckNotFound(), "REC_002", 404},
		{"RateLimitExceeded", ErrRateLimitExceeded(), "RATE_001", 429},
		{"ConcurrentModification", ErrConcurrentModification(), "SYS_004", 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestErrInvalidStateTransition_Message(t *testing.T) {
	err := ErrInvalidStateTransition("pending", "release")
	assert.Equal(t, "Cannot release from state pending", err.Message)
}

func TestOutcome(t *testing.T) {
	ok, msg := Outcome(nil)
	assert.True(t, ok)
	assert.Equal(t, "ok", msg)

	ok, msg = Outcome(fmt.Errorf("lock: %w", ErrInsufficientBalance()))
	assert.False(t, ok)
	assert.Equal(t, "Insufficient balance in wallet", msg)

	ok, msg = Outcome(errors.New("pq: connection reset"))
	assert.False(t, ok)
	assert.Equal(t, "Internal server error", msg)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "ESC_002", CodeOf(ErrOrderNotFound()))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestInternalError(t *testing.T) {
	inner := fmt.Errorf("something broke")
	err := InternalError(inner)

	assert.Equal(t, "SYS_001", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.True(t, errors.Is(err, inner))
}
