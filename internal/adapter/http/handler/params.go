package handler

import (
	"time"

	"custody-ledger/pkg/apperror"
	"custody-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// uuidParam parses a path parameter and writes a validation error on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("Invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON binds and validates the request body, writing a validation error on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	return true
}

// bindQuery binds and validates query parameters, writing a validation error on failure.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	return true
}

// Binding validators have already accepted these strings.
func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func optionalDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d := mustDecimal(*s)
	return &d
}

func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id := uuid.MustParse(s)
	return &id
}

func optionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
