package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custody-ledger/internal/core/domain"
	"custody-ledger/internal/core/ports"
	"custody-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	hundred   = decimal.NewFromInt(100)
	errNotDue = errors.New("order not due for auto-finalize")
)

// EscrowSettings holds the marketplace escrow policy.
type EscrowSettings struct {
	FeePercent   decimal.Decimal
	AutoFinalize time.Duration
	FeeAccountID *uuid.UUID // nil = fee stays unallocated
}

// EscrowEngineImpl implements ports.EscrowEngine.
type EscrowEngineImpl struct {
	orders     ports.OrderRepository
	wallets    ports.WalletStore
	transactor ports.DBTransactor
	audit      ports.AuditService
	metrics    ports.Metrics
	settings   EscrowSettings
	log        zerolog.Logger
	now        func() time.Time
}

// NewEscrowEngine creates a new EscrowEngineImpl.
func NewEscrowEngine(
	orders ports.OrderRepository,
	wallets ports.WalletStore,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	metrics ports.Metrics,
	settings EscrowSettings,
	log zerolog.Logger,
) *EscrowEngineImpl {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &EscrowEngineImpl{
		orders:     orders,
		wallets:    wallets,
		transactor: transactor,
		audit:      audit,
		metrics:    metrics,
		settings:   settings,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register records the escrow slice of a new order in Pending.
func (s *EscrowEngineImpl) Register(ctx context.Context, req ports.RegisterOrderRequest) (*domain.EscrowedOrder, error) {
	if req.OrderID == uuid.Nil || req.BuyerID == uuid.Nil || req.VendorID == uuid.Nil {
		return nil, apperror.Validation("order, buyer and vendor ids are required")
	}
	if req.BuyerID == req.VendorID {
		return nil, apperror.Validation("buyer and vendor must differ")
	}
	if err := validateAmount(req.Currency, req.Total); err != nil {
		return nil, err
	}

	existing, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if existing != nil {
		return nil, apperror.Validation("order already registered")
	}

	now := s.now()
	o := &domain.EscrowedOrder{
		ID:           req.OrderID,
		BuyerID:      req.BuyerID,
		VendorID:     req.VendorID,
		Status:       domain.OrderPending,
		Currency:     req.Currency,
		Total:        req.Total,
		EscrowAmount: decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}
	return o, nil
}

// Get returns the escrow slice of an order.
func (s *EscrowEngineImpl) Get(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if o == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	return o, nil
}

// LockFunds moves the order total from the buyer's balance into escrow.
func (s *EscrowEngineImpl) LockFunds(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error) {
	return s.transition(ctx, orderID, domain.ActionLock, nil,
		func(ctx context.Context, tx pgx.Tx, o *domain.EscrowedOrder) error {
			wallets, err := s.wallets.Lock(ctx, tx, o.BuyerID)
			if err != nil {
				return err
			}
			if _, err := s.wallets.Apply(ctx, tx, wallets[o.BuyerID], s.mutation(o, domain.EntryEscrowLock, o.Total, nil)); err != nil {
				return err
			}
			o.EscrowAmount = o.Total
			o.EscrowReleased = false
			s.armFinalize(o)
			return nil
		})
}

// MarkShipped restarts the auto-finalize timer.
func (s *EscrowEngineImpl) MarkShipped(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error) {
	return s.transition(ctx, orderID, domain.ActionShip, nil,
		func(_ context.Context, _ pgx.Tx, o *domain.EscrowedOrder) error {
			s.armFinalize(o)
			return nil
		})
}

// Release pays the vendor the escrowed total minus the marketplace fee.
func (s *EscrowEngineImpl) Release(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error) {
	return s.release(ctx, orderID, nil)
}

func (s *EscrowEngineImpl) release(ctx context.Context, orderID uuid.UUID, due *time.Time) (*domain.EscrowedOrder, error) {
	return s.transition(ctx, orderID, domain.ActionRelease, s.payees,
		func(ctx context.Context, tx pgx.Tx, o *domain.EscrowedOrder) error {
			if due != nil && (o.AutoFinalizeAt == nil || o.AutoFinalizeAt.After(*due)) {
				return errNotDue
			}

			fee := o.Currency.Truncate(o.Total.Mul(s.settings.FeePercent).Div(hundred))
			payout := o.EscrowAmount.Sub(fee)

			ids := []uuid.UUID{o.BuyerID, o.VendorID}
			if s.settings.FeeAccountID != nil {
				ids = append(ids, *s.settings.FeeAccountID)
			}
			wallets, err := s.wallets.Lock(ctx, tx, ids...)
			if err != nil {
				return err
			}

			buyer, vendor := wallets[o.BuyerID], wallets[o.VendorID]
			meta := map[string]interface{}{"vendor_id": o.VendorID.String(), "fee": fee.String()}
			if payout.IsPositive() {
				if _, err := s.wallets.Apply(ctx, tx, buyer, s.mutation(o, domain.EntryEscrowCapture, payout, meta)); err != nil {
					return err
				}
			}
			if fee.IsPositive() {
				if _, err := s.wallets.Apply(ctx, tx, buyer, s.mutation(o, domain.EntryFee, fee, meta)); err != nil {
					return err
				}
			}
			if payout.IsPositive() {
				if _, err := s.wallets.Apply(ctx, tx, vendor, s.mutation(o, domain.EntryDeposit, payout, map[string]interface{}{"buyer_id": o.BuyerID.String()})); err != nil {
					return err
				}
			}
			if s.settings.FeeAccountID != nil && fee.IsPositive() {
				feeWallet := wallets[*s.settings.FeeAccountID]
				if _, err := s.wallets.Apply(ctx, tx, feeWallet, s.mutation(o, domain.EntryDeposit, fee, map[string]interface{}{"kind": "marketplace_fee"})); err != nil {
					return err
				}
			}

			o.EscrowReleased = true
			o.AutoFinalizeAt = nil
			return nil
		})
}

// Refund returns escrow to the buyer, optionally splitting it with the vendor.
func (s *EscrowEngineImpl) Refund(ctx context.Context, orderID uuid.UUID, percent *decimal.Decimal) (*domain.EscrowedOrder, error) {
	if percent != nil && (percent.IsNegative() || percent.GreaterThan(hundred)) {
		return nil, apperror.ErrInvalidRefundPercent()
	}

	var ensure func(*domain.EscrowedOrder) []uuid.UUID
	if percent != nil {
		ensure = func(o *domain.EscrowedOrder) []uuid.UUID { return []uuid.UUID{o.VendorID} }
	}

	return s.transition(ctx, orderID, domain.ActionRefund, ensure,
		func(ctx context.Context, tx pgx.Tx, o *domain.EscrowedOrder) error {
			share := o.EscrowAmount
			if percent != nil {
				share = o.Currency.Truncate(o.EscrowAmount.Mul(*percent).Div(hundred))
			}
			rest := o.EscrowAmount.Sub(share)

			ids := []uuid.UUID{o.BuyerID}
			if rest.IsPositive() {
				ids = append(ids, o.VendorID)
			}
			wallets, err := s.wallets.Lock(ctx, tx, ids...)
			if err != nil {
				return err
			}

			buyer := wallets[o.BuyerID]
			if share.IsPositive() {
				if _, err := s.wallets.Apply(ctx, tx, buyer, s.mutation(o, domain.EntryEscrowRefund, share, nil)); err != nil {
					return err
				}
			}
			if rest.IsPositive() {
				meta := map[string]interface{}{"vendor_id": o.VendorID.String(), "refund_percent": percent.String()}
				if _, err := s.wallets.Apply(ctx, tx, buyer, s.mutation(o, domain.EntryEscrowCapture, rest, meta)); err != nil {
					return err
				}
				if _, err := s.wallets.Apply(ctx, tx, wallets[o.VendorID], s.mutation(o, domain.EntryDeposit, rest, map[string]interface{}{"buyer_id": o.BuyerID.String()})); err != nil {
					return err
				}
			}

			o.EscrowReleased = true
			o.AutoFinalizeAt = nil
			return nil
		})
}

// MarkDisputed freezes the order until an operator releases or refunds it.
func (s *EscrowEngineImpl) MarkDisputed(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error) {
	return s.transition(ctx, orderID, domain.ActionDispute, nil,
		func(_ context.Context, _ pgx.Tx, o *domain.EscrowedOrder) error {
			o.AutoFinalizeAt = nil
			return nil
		})
}

// Cancel abandons an order before shipment, returning any escrow to the buyer.
func (s *EscrowEngineImpl) Cancel(ctx context.Context, orderID uuid.UUID) (*domain.EscrowedOrder, error) {
	return s.transition(ctx, orderID, domain.ActionCancel, nil,
		func(ctx context.Context, tx pgx.Tx, o *domain.EscrowedOrder) error {
			if o.Status == domain.OrderLocked && o.EscrowAmount.IsPositive() {
				wallets, err := s.wallets.Lock(ctx, tx, o.BuyerID)
				if err != nil {
					return err
				}
				if _, err := s.wallets.Apply(ctx, tx, wallets[o.BuyerID], s.mutation(o, domain.EntryEscrowRefund, o.EscrowAmount, nil)); err != nil {
					return err
				}
				o.EscrowReleased = true
			}
			o.AutoFinalizeAt = nil
			return nil
		})
}

// AutoFinalizeDue releases shipped orders whose grace period ended before now.
// Orders are walked in id order, so one that keeps failing is logged and
// passed over instead of holding back the rest.
func (s *EscrowEngineImpl) AutoFinalizeDue(ctx context.Context, now time.Time, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	released := 0
	after := uuid.Nil
	for {
		ids, err := s.orders.ListDueForFinalize(ctx, now, after, pageSize)
		if err != nil {
			return released, apperror.InternalError(fmt.Errorf("list due orders: %w", err))
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				return released, ctx.Err()
			}
			_, err := s.release(ctx, id, &now)
			switch {
			case err == nil:
				released++
			case errors.Is(err, errNotDue), apperror.CodeOf(err) == "ESC_001":
				// Disputed or re-shipped since listing.
			default:
				s.log.Error().Err(err).Str("order_id", id.String()).Msg("auto-finalize failed")
			}
		}
		if len(ids) < pageSize {
			return released, nil
		}
		after = ids[len(ids)-1]
	}
}

type transitionFunc func(ctx context.Context, tx pgx.Tx, o *domain.EscrowedOrder) error

// transition runs one state change as a single atomic unit: the order row is
// locked first, then wallets in id order, and everything rolls back on error.
func (s *EscrowEngineImpl) transition(
	ctx context.Context,
	orderID uuid.UUID,
	action domain.OrderAction,
	ensure func(*domain.EscrowedOrder) []uuid.UUID,
	fn transitionFunc,
) (*domain.EscrowedOrder, error) {
	if ensure != nil {
		o, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		for _, id := range ensure(o) {
			if _, err := s.wallets.EnsureWallet(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	o, err := s.orders.GetForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, storageError("lock order", err)
	}
	if o == nil {
		return nil, apperror.ErrOrderNotFound()
	}
	if !o.Status.CanApply(action) {
		s.metrics.OrderTransition(action, "rejected")
		return nil, apperror.ErrInvalidStateTransition(string(o.Status), string(action))
	}

	from := o.Status
	if err := fn(ctx, dbTx, o); err != nil {
		if !errors.Is(err, errNotDue) {
			s.metrics.OrderTransition(action, "failed")
		}
		return nil, err
	}
	o.Status = action.Target()
	o.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, dbTx, o); err != nil {
		s.metrics.OrderTransition(action, "failed")
		return nil, apperror.InternalError(fmt.Errorf("update order: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		s.metrics.OrderTransition(action, "failed")
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.OrderTransition(action, "ok")
	s.log.Info().
		Str("order_id", o.ID.String()).
		Str("from", string(from)).
		Str("to", string(o.Status)).
		Msg("order escrow transition")

	buyerID := o.BuyerID
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &buyerID,
		Action:       domain.AuditActionOrderTransition,
		ResourceType: "order",
		ResourceID:   o.ID.String(),
		Details: auditDetails(map[string]interface{}{
			"action":    action,
			"from":      from,
			"to":        o.Status,
			"vendor_id": o.VendorID.String(),
			"currency":  o.Currency,
			"total":     o.Total.String(),
		}),
		CreatedAt: o.UpdatedAt,
	})
	return o, nil
}

// payees lists wallets a release credits, so they exist before locking.
func (s *EscrowEngineImpl) payees(o *domain.EscrowedOrder) []uuid.UUID {
	ids := []uuid.UUID{o.VendorID}
	if s.settings.FeeAccountID != nil {
		ids = append(ids, *s.settings.FeeAccountID)
	}
	return ids
}

func (s *EscrowEngineImpl) armFinalize(o *domain.EscrowedOrder) {
	at := s.now().Add(s.settings.AutoFinalize)
	o.AutoFinalizeAt = &at
}

func (s *EscrowEngineImpl) mutation(o *domain.EscrowedOrder, t domain.EntryType, amount decimal.Decimal, meta map[string]interface{}) domain.Mutation {
	return domain.Mutation{
		Type:      t,
		Currency:  o.Currency,
		Amount:    amount,
		Reference: domain.OrderRef(o.ID),
		Metadata:  meta,
	}
}
