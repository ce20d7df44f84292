package dto

import (
	"encoding/base32"
	"html"
	"reflect"
	"regexp"
	"strings"

	"custody-ledger/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.:]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("currency", validateCurrency)
		_ = v.RegisterValidation("entry_type", validateEntryType)
		_ = v.RegisterValidation("amount", validateAmount)
		_ = v.RegisterValidation("signed_amount", validateSignedAmount)
		_ = v.RegisterValidation("limit", validateLimit)
		_ = v.RegisterValidation("otp_secret", validateOTPSecret)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, dot and colon.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

func validateCurrency(fl validator.FieldLevel) bool {
	_, ok := domain.ParseCurrency(fl.Field().String())
	return ok
}

func validateEntryType(fl validator.FieldLevel) bool {
	return domain.EntryType(fl.Field().String()).Valid()
}

// validateAmount accepts strictly positive decimal strings. Precision is
// checked per currency by the services.
func validateAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.IsPositive()
}

// validateSignedAmount accepts any non-zero decimal string.
func validateSignedAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsZero()
}

// validateLimit accepts zero or positive decimal strings.
func validateLimit(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsNegative()
}

// validateOTPSecret accepts unpadded RFC 4648 base32.
func validateOTPSecret(fl validator.FieldLevel) bool {
	s := strings.ToUpper(fl.Field().String())
	_, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	return err == nil
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer. Never apply it to
// structs carrying credentials.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
