package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
	"time"

	"custody-ledger/internal/core/domain"
)

// LedgerHasher implements ports.IntegrityHasher. With a key it computes
// HMAC-SHA256, without one a plain SHA-256 digest.
type LedgerHasher struct {
	key []byte
}

// NewLedgerHasher creates a hasher. An empty key selects plain SHA-256.
func NewLedgerHasher(key string) *LedgerHasher {
	return &LedgerHasher{key: []byte(key)}
}

// Sum returns the lowercase hex integrity hash of the entry.
func (h *LedgerHasher) Sum(e *domain.LedgerEntry) string {
	var mac hash.Hash
	if len(h.key) > 0 {
		mac = hmac.New(sha256.New, h.key)
	} else {
		mac = sha256.New()
	}
	mac.Write([]byte(CanonicalEntry(e)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the stored hash in constant time.
func (h *LedgerHasher) Verify(e *domain.LedgerEntry) bool {
	return hmac.Equal([]byte(h.Sum(e)), []byte(e.IntegrityHash))
}

// CanonicalEntry builds the hashed payload.
// Format: USER|TYPE|AMOUNT|CURRENCY|TIMESTAMP|REFERENCE
func CanonicalEntry(e *domain.LedgerEntry) string {
	return strings.Join([]string{
		e.UserID.String(),
		string(e.Type),
		e.Amount.StringFixed(e.Currency.Places()),
		string(e.Currency),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
		e.Reference,
	}, "|")
}
