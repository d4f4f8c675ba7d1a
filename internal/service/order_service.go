package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultFundingCacheTTL = 5 * time.Minute

// OrderServiceImpl implements ports.OrderService.
type OrderServiceImpl struct {
	orderRepo  ports.OrderRepository
	txRepo     ports.PaymentTransactionRepository
	cache      ports.FundingCache
	webhookSvc ports.WebhookService
	transactor ports.DBTransactor
	cacheTTL   time.Duration
	log        zerolog.Logger
}

// NewOrderService creates a new OrderServiceImpl.
func NewOrderService(
	orderRepo ports.OrderRepository,
	txRepo ports.PaymentTransactionRepository,
	cache ports.FundingCache,
	webhookSvc ports.WebhookService,
	transactor ports.DBTransactor,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *OrderServiceImpl {
	if cacheTTL <= 0 {
		cacheTTL = defaultFundingCacheTTL
	}
	return &OrderServiceImpl{
		orderRepo:  orderRepo,
		txRepo:     txRepo,
		cache:      cache,
		webhookSvc: webhookSvc,
		transactor: transactor,
		cacheTTL:   cacheTTL,
		log:        log,
	}
}

// GetOrder returns the order with its payment address transactions.
func (s *OrderServiceImpl) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Order")
	}

	txs, err := s.txRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list payment transactions: %w", err))
	}
	order.Transactions = txs
	return order, nil
}

// GetFunding returns the order's funding status. A cached status is reused
// only while its fingerprint matches the order's current transaction set.
func (s *OrderServiceImpl) GetFunding(ctx context.Context, order *domain.Order) (*domain.FundingStatus, error) {
	fingerprint := domain.TransactionFingerprint(order.Price(), order.Transactions)

	cached, err := s.cache.Get(ctx, order.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("funding cache read failed, recomputing")
	}
	if cached != nil && cached.Fingerprint == fingerprint {
		return cached, nil
	}

	status := order.Funding()
	if err := s.cache.Set(ctx, &status, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("funding cache write failed")
	}
	return &status, nil
}

// ListOrders returns the caller's sales or purchases.
func (s *OrderServiceImpl) ListOrders(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	if _, err := domain.ParseOrderType(string(params.Type)); err != nil {
		return nil, 0, apperror.ErrInvalidOrderType()
	}
	if params.State != nil && !params.State.IsValid() {
		return nil, 0, apperror.ErrInvalidOrderState(string(*params.State))
	}
	params.Normalize()

	orders, total, err := s.orderRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list orders: %w", err))
	}
	return orders, total, nil
}

// SyncOrder stores an order snapshot pushed by the wallet feed. State changes
// on an existing order must follow the transition table.
func (s *OrderServiceImpl) SyncOrder(ctx context.Context, req ports.SyncOrderRequest) (*domain.Order, error) {
	state, err := domain.ParseOrderState(req.State)
	if err != nil {
		return nil, apperror.ErrInvalidOrderState(req.State)
	}

	var contract *domain.Contract
	if len(req.Contract) > 0 {
		contract, err = domain.ParseContract(req.Contract)
		if err != nil {
			return nil, apperror.ErrInvalidContract(err)
		}
	}

	now := time.Now().UTC()
	var refund *domain.PaymentTransaction
	if req.RefundTransaction != nil {
		txs, err := parseTransactionInputs(req.OrderID, []ports.TransactionInput{*req.RefundTransaction}, now)
		if err != nil {
			return nil, err
		}
		refund = &txs[0]
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	existing, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, req.OrderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock order: %w", err))
	}

	order := &domain.Order{
		ID:                req.OrderID,
		BuyerID:           req.BuyerID,
		VendorID:          req.VendorID,
		ModeratorID:       req.ModeratorID,
		State:             state,
		Contract:          contract,
		RefundTransaction: refund,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stateChanged := true
	if existing != nil {
		if existing.State != state && !existing.State.CanTransitionTo(state) {
			return nil, apperror.ErrInvalidTransition(string(existing.State), string(state))
		}
		stateChanged = existing.State != state
		order.CreatedAt = existing.CreatedAt
		order.DisputeClaim = existing.DisputeClaim
		if order.Contract == nil {
			order.Contract = existing.Contract
		}
		if order.RefundTransaction == nil {
			order.RefundTransaction = existing.RefundTransaction
		}
	}

	if err := s.orderRepo.Upsert(ctx, dbTx, order); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("upsert order: %w", err))
	}

	txs, err := s.txRepo.ListByOrderTx(ctx, dbTx, order.ID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list payment transactions: %w", err))
	}
	order.Transactions = txs

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit: %w", err))
	}

	s.invalidateFunding(ctx, order.ID)

	s.log.Info().
		Str("order_id", order.ID).
		Str("state", string(order.State)).
		Bool("created", existing == nil).
		Msg("order synced")

	if stateChanged {
		funding := order.Funding()
		s.enqueue(ctx, EventOrderStateChanged, order, &funding)
	}

	return order, nil
}

// IngestTransactions replaces the order's payment address transactions with
// the given snapshot and recomputes funding. An AWAITING_PAYMENT order whose
// balance is fully covered moves to PENDING.
func (s *OrderServiceImpl) IngestTransactions(ctx context.Context, req ports.IngestTransactionsRequest) (*domain.FundingStatus, error) {
	now := time.Now().UTC()
	incoming, err := parseTransactionInputs(req.OrderID, req.Transactions, now)
	if err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, req.OrderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Order")
	}

	before, err := s.txRepo.ListByOrderTx(ctx, dbTx, order.ID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list payment transactions: %w", err))
	}
	price := order.Price()
	prev := domain.ComputeFunding(order.ID, price, before)

	keep := make([]string, 0, len(incoming))
	for i := range incoming {
		if err := s.txRepo.Upsert(ctx, dbTx, &incoming[i]); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("upsert payment transaction: %w", err))
		}
		keep = append(keep, incoming[i].TxID)
	}
	removed, err := s.txRepo.DeleteMissing(ctx, dbTx, order.ID, keep)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("delete stale payment transactions: %w", err))
	}

	after, err := s.txRepo.ListByOrderTx(ctx, dbTx, order.ID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list payment transactions: %w", err))
	}
	order.Transactions = after
	funding := domain.ComputeFunding(order.ID, price, after)

	// Partial payments report IsFunded but leave the order awaiting the rest.
	if order.State == domain.OrderStateAwaitingPayment && !funding.BalanceRemaining.IsPositive() {
		if err := s.orderRepo.UpdateState(ctx, dbTx, order.ID, domain.OrderStatePending, nil); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("mark order pending: %w", err))
		}
		order.State = domain.OrderStatePending
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit: %w", err))
	}

	if err := s.cache.Set(ctx, &funding, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("funding cache write failed")
		s.invalidateFunding(ctx, order.ID)
	}

	s.log.Info().
		Str("order_id", order.ID).
		Int("transactions", len(after)).
		Int64("removed", removed).
		Str("balance_remaining", funding.BalanceRemaining.String()).
		Bool("funded", funding.IsFunded).
		Int64("funded_block_height", funding.FundedBlockHeight).
		Msg("payment transactions ingested")

	becameFunded := !prev.IsFunded && funding.IsFunded
	gainedHeight := prev.FundedBlockHeight == 0 && funding.FundedBlockHeight > 0
	if becameFunded || gainedHeight {
		s.enqueue(ctx, EventOrderFunded, order, &funding)
	}

	return &funding, nil
}

// CancelOrder cancels an unmoderated, funded order on behalf of its buyer.
func (s *OrderServiceImpl) CancelOrder(ctx context.Context, orderID string, profileID string) (*domain.Order, error) {
	return s.transition(ctx, orderID, profileID, domain.OrderStateCanceled, nil, func(o *domain.Order) error {
		if !o.IsCancelable(profileID) {
			return apperror.ErrOrderNotCancelable()
		}
		return nil
	})
}

// OpenDispute moves a moderated order to DISPUTED and records the claim.
func (s *OrderServiceImpl) OpenDispute(ctx context.Context, req ports.DisputeRequest) (*domain.Order, error) {
	claim := strings.TrimSpace(req.Claim)
	if claim == "" {
		return nil, apperror.Validation("claim is required")
	}
	return s.transition(ctx, req.OrderID, req.ProfileID, domain.OrderStateDisputed, &claim, func(o *domain.Order) error {
		if !o.IsDisputable(req.ProfileID) {
			return apperror.ErrOrderNotDisputable()
		}
		return nil
	})
}

// transition locks the order, hydrates its transactions, runs check and moves
// the order to next. Orders profileID takes no part in are reported as not
// found, the same as a missing order.
func (s *OrderServiceImpl) transition(
	ctx context.Context,
	orderID string,
	profileID string,
	next domain.OrderState,
	disputeClaim *string,
	check func(*domain.Order) error,
) (*domain.Order, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := s.lockHydrated(ctx, dbTx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(profileID) {
		return nil, apperror.ErrNotFound("Order")
	}

	if err := check(order); err != nil {
		return nil, err
	}
	if !order.State.CanTransitionTo(next) {
		return nil, apperror.ErrInvalidTransition(string(order.State), string(next))
	}

	if err := s.orderRepo.UpdateState(ctx, dbTx, order.ID, next, disputeClaim); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update order state: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit: %w", err))
	}

	prevState := order.State
	order.State = next
	order.UpdatedAt = time.Now().UTC()
	if disputeClaim != nil {
		order.DisputeClaim = disputeClaim
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("from", string(prevState)).
		Str("to", string(next)).
		Msg("order state changed")

	funding := order.Funding()
	s.enqueue(ctx, EventOrderStateChanged, order, &funding)

	return order, nil
}

func (s *OrderServiceImpl) lockHydrated(ctx context.Context, dbTx pgx.Tx, orderID string) (*domain.Order, error) {
	order, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Order")
	}
	txs, err := s.txRepo.ListByOrderTx(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list payment transactions: %w", err))
	}
	order.Transactions = txs
	return order, nil
}

func (s *OrderServiceImpl) invalidateFunding(ctx context.Context, orderID string) {
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.log.Warn().Err(err).Str("order_id", orderID).Msg("funding cache invalidate failed")
	}
}

func (s *OrderServiceImpl) enqueue(ctx context.Context, eventType string, order *domain.Order, funding *domain.FundingStatus) {
	if s.webhookSvc == nil {
		return
	}
	if err := s.webhookSvc.EnqueueOrderEvent(ctx, eventType, order, funding); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Str("event", eventType).Msg("webhook enqueue failed")
	}
}

// parseTransactionInputs validates a raw transaction snapshot. Malformed
// values never reach the funding calculator.
func parseTransactionInputs(orderID string, inputs []ports.TransactionInput, now time.Time) ([]domain.PaymentTransaction, error) {
	seen := make(map[string]struct{}, len(inputs))
	txs := make([]domain.PaymentTransaction, 0, len(inputs))
	for _, in := range inputs {
		if in.TxID == "" {
			return nil, apperror.ErrInvalidTransaction(in.TxID, "txid is required")
		}
		if _, dup := seen[in.TxID]; dup {
			return nil, apperror.ErrDuplicateTransaction(in.TxID)
		}
		seen[in.TxID] = struct{}{}

		value, err := decimal.NewFromString(strings.TrimSpace(in.Value))
		if err != nil {
			return nil, apperror.ErrInvalidTransaction(in.TxID, "value is not a decimal number")
		}
		if in.Height < 0 {
			return nil, apperror.ErrInvalidTransaction(in.TxID, "height must not be negative")
		}

		txs = append(txs, domain.PaymentTransaction{
			OrderID:   orderID,
			TxID:      in.TxID,
			Value:     value,
			Height:    in.Height,
			Timestamp: in.Timestamp,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return txs, nil
}
