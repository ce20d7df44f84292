package service

import (
	"testing"
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestRiskEngine_Score(t *testing.T) {
	engine := NewRiskEngine(dec("0.5"), dec("25"))
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-90 * 24 * time.Hour)

	tests := []struct {
		name    string
		in      domain.RiskInput
		score   int
		factors []string
		review  bool
	}{
		{
			name:    "known address, old account",
			in:      domain.RiskInput{Amount: dec("0.1"), Currency: domain.CurrencyBTC, Address: "a", KnownAddresses: []string{"a"}, CreatedAt: now, AccountCreatedAt: old},
			score:   0,
			factors: []string{},
		},
		{
			name:    "new destination only",
			in:      domain.RiskInput{Amount: dec("0.1"), Currency: domain.CurrencyBTC, Address: "b", KnownAddresses: []string{"a"}, CreatedAt: now, AccountCreatedAt: old},
			score:   15,
			factors: []string{domain.RiskNewDestination},
		},
		{
			name:    "large amount and new destination",
			in:      domain.RiskInput{Amount: dec("0.5"), Currency: domain.CurrencyBTC, Address: "b", CreatedAt: now, AccountCreatedAt: old},
			score:   35,
			factors: []string{domain.RiskLargeAmount, domain.RiskNewDestination},
		},
		{
			name:    "new account crosses review threshold",
			in:      domain.RiskInput{Amount: dec("1"), Currency: domain.CurrencyXMR, Address: "b", CreatedAt: now, AccountCreatedAt: now.Add(-time.Hour)},
			score:   45,
			factors: []string{domain.RiskNewDestination, domain.RiskNewAccount},
			review:  true,
		},
		{
			name:    "every factor",
			in:      domain.RiskInput{Amount: dec("30"), Currency: domain.CurrencyXMR, Address: "b", CreatedAt: now, AccountCreatedAt: now, RecentRequests: 4},
			score:   90,
			factors: []string{domain.RiskLargeAmount, domain.RiskNewDestination, domain.RiskNewAccount, domain.RiskHighVelocity},
			review:  true,
		},
		{
			name:    "three recent requests is not high velocity",
			in:      domain.RiskInput{Amount: dec("0.1"), Currency: domain.CurrencyBTC, Address: "a", KnownAddresses: []string{"a"}, CreatedAt: now, AccountCreatedAt: old, RecentRequests: 3},
			score:   0,
			factors: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Score(tt.in)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.factors, got.Factors)
			assert.Equal(t, tt.review, got.ManualReviewRequired)
		})
	}
}

func TestRiskEngine_Deterministic(t *testing.T) {
	engine := NewRiskEngine(dec("0.5"), dec("25"))
	in := domain.RiskInput{Amount: dec("0.7"), Currency: domain.CurrencyBTC, Address: "x", CreatedAt: time.Now(), AccountCreatedAt: time.Now(), RecentRequests: 9}

	first := engine.Score(in)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, engine.Score(in))
	}
}
