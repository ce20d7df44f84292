package service

import (
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPVerifier implements ports.OTPVerifier (RFC 6238, 30s step, one step of skew).
type TOTPVerifier struct{}

// NewTOTPVerifier creates a new TOTPVerifier.
func NewTOTPVerifier() *TOTPVerifier {
	return &TOTPVerifier{}
}

// Verify reports whether code is valid for secret at the given time.
func (v *TOTPVerifier) Verify(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totpOpts)
	return err == nil && ok
}

func decodeOTPSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	b, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) < 10 {
		return nil, errors.New("otp secret shorter than 80 bits")
	}
	return b, nil
}
