package service

import (
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

const (
	riskWeightLargeAmount    = 20
	riskWeightNewDestination = 15
	riskWeightNewAccount     = 30
	riskWeightHighVelocity   = 25

	newAccountAge        = 7 * 24 * time.Hour
	highVelocityRequests = 3
	maxRiskScore         = 100
)

// RiskEngine implements ports.WithdrawalRiskEngine. Score depends only on
// its input, so identical requests always get identical results.
type RiskEngine struct {
	largeAmount map[domain.Currency]decimal.Decimal
}

// NewRiskEngine creates a scorer with per-currency large-amount thresholds.
func NewRiskEngine(largeBTC, largeXMR decimal.Decimal) *RiskEngine {
	return &RiskEngine{largeAmount: map[domain.Currency]decimal.Decimal{
		domain.CurrencyBTC: largeBTC,
		domain.CurrencyXMR: largeXMR,
	}}
}

// Score computes the 0-100 risk score and the factors that contributed.
func (e *RiskEngine) Score(in domain.RiskInput) domain.RiskAssessment {
	score := 0
	factors := []string{}

	if threshold, ok := e.largeAmount[in.Currency]; ok && in.Amount.GreaterThanOrEqual(threshold) {
		score += riskWeightLargeAmount
		factors = append(factors, domain.RiskLargeAmount)
	}

	if !containsAddress(in.KnownAddresses, in.Address) {
		score += riskWeightNewDestination
		factors = append(factors, domain.RiskNewDestination)
	}

	if !in.AccountCreatedAt.IsZero() && in.CreatedAt.Sub(in.AccountCreatedAt) < newAccountAge {
		score += riskWeightNewAccount
		factors = append(factors, domain.RiskNewAccount)
	}

	if in.RecentRequests > highVelocityRequests {
		score += riskWeightHighVelocity
		factors = append(factors, domain.RiskHighVelocity)
	}

	if score > maxRiskScore {
		score = maxRiskScore
	}

	return domain.RiskAssessment{
		Score:                score,
		Factors:              factors,
		ManualReviewRequired: score >= domain.ManualReviewScore,
	}
}

func containsAddress(known []string, addr string) bool {
	for _, k := range known {
		if k == addr {
			return true
		}
	}
	return false
}
