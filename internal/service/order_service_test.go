package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports/mocks"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type orderTestDeps struct {
	svc        *OrderServiceImpl
	orderRepo  *mocks.MockOrderRepository
	txRepo     *mocks.MockPaymentTransactionRepository
	cache      *mocks.MockFundingCache
	webhookSvc *mocks.MockWebhookService
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupOrderService(t *testing.T) *orderTestDeps {
	ctrl := gomock.NewController(t)
	d := &orderTestDeps{
		orderRepo:  mocks.NewMockOrderRepository(ctrl),
		txRepo:     mocks.NewMockPaymentTransactionRepository(ctrl),
		cache:      mocks.NewMockFundingCache(ctrl),
		webhookSvc: mocks.NewMockWebhookService(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewOrderService(d.orderRepo, d.txRepo, d.cache, d.webhookSvc, d.transactor, time.Minute, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func contractFor(t *testing.T, amount string) *domain.Contract {
	t.Helper()
	c, err := domain.ParseContract([]byte(`{"buyerOrder":{"payment":{"amount":"` + amount + `","coin":"BTC"}}}`))
	require.NoError(t, err)
	return c
}

func newOrder(t *testing.T, state domain.OrderState, moderated bool) *domain.Order {
	o := &domain.Order{
		ID:       "QmOrder1",
		BuyerID:  "QmBuyer",
		VendorID: "QmVendor",
		State:    state,
		Contract: contractFor(t, "100"),
	}
	if moderated {
		mod := "QmMod"
		o.ModeratorID = &mod
	}
	return o
}

func ptx(txid string, value int64, height int64) domain.PaymentTransaction {
	return domain.PaymentTransaction{OrderID: "QmOrder1", TxID: txid, Value: decimal.NewFromInt(value), Height: height}
}

// ==================== GetOrder ====================

func TestOrderService_GetOrder_Success(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()

	order := newOrder(t, domain.OrderStatePending, false)
	txs := []domain.PaymentTransaction{ptx("a", 100, 0)}

	d.orderRepo.EXPECT().GetByID(ctx, "QmOrder1").Return(order, nil)
	d.txRepo.EXPECT().ListByOrder(ctx, "QmOrder1").Return(txs, nil)

	result, err := d.svc.GetOrder(ctx, "QmOrder1")
	require.NoError(t, err)
	assert.Len(t, result.Transactions, 1)
	assert.True(t, result.IsFunded())
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()

	d.orderRepo.EXPECT().GetByID(ctx, "missing").Return(nil, nil)

	_, err := d.svc.GetOrder(ctx, "missing")
	requireAppCode(t, err, "ORD_001")
}

func TestOrderService_GetOrder_DBError(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()

	d.orderRepo.EXPECT().GetByID(ctx, "QmOrder1").Return(nil, errors.New("connection reset"))

	_, err := d.svc.GetOrder(ctx, "QmOrder1")
	requireAppCode(t, err, "SYS_001")
}

// ==================== GetFunding ====================

func TestOrderService_GetFunding_CacheHit(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()

	order := newOrder(t, domain.OrderStatePending, false)
	order.Transactions = []domain.PaymentTransaction{ptx("a", 60, 10)}
	cached := order.Funding()

	d.cache.EXPECT().Get(ctx, "QmOrder1").Return(&cached, nil)

	result, err := d.svc.GetFunding(ctx, order)
	require.NoError(t, err)
	assert.Same(t, &cached, result)
}

func TestOrderService_GetFunding_StaleFingerprintRecomputes(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()

	order := newOrder(t, domain.OrderStatePending, false)
	order.Transactions = []domain.PaymentTransaction{ptx("a", 60, 10)}
	stale := order.Funding()

	order.Transactions = append(order.Transactions, ptx("b", 50, 20))

	d.cache.EXPECT().Get(ctx, "QmOrder1").Return(&stale, nil)
	d.cache.EXPECT().Set(ctx, gomock.Any(), time.Minute).Return(nil)

	result, err := d.svc.GetFunding(ctx, order)
	require.NoError(t, err)
	assert.NotEqual(t, stale.Fingerprint, result.Fingerprint)
	assert.Equal(t, "-10", result.BalanceRemaining.String())
	assert.Equal(t, int64(20), result.FundedBlockHeight)
	assert.False(t, result.IsFunded, "overpaid order is not funded")
}

func TestOrderService_GetFunding_CacheDown(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()

	order := newOrder(t, domain.OrderStatePending, false)
	order.Transactions = []domain.PaymentTransaction{ptx("a", 50, 0)}

	d.cache.EXPECT().Get(ctx, "QmOrder1").Return(nil, errors.New("redis unavailable"))
	d.cache.EXPECT().Set(ctx, gomock.Any(), time.Minute).Return(errors.New("redis unavailable"))

	result, err := d.svc.GetFunding(ctx, order)
	require.NoError(t, err)
	assert.True(t, result.IsPartiallyFunded)
	assert.True(t, result.IsFunded)
	assert.Equal(t, int64(0), result.FundedBlockHeight)
}

// ==================== ListOrders ====================

func TestOrderService_ListOrders_InvalidType(t *testing.T) {
	d := setupOrderService(t)

	_, _, err := d.svc.ListOrders(context.Background(), ports.OrderListParams{ProfileID: "QmBuyer", Type: "gift"})
	requireAppCode(t, err, "ORD_006")
}

func TestOrderService_ListOrders_InvalidState(t *testing.T) {
	d := setupOrderService(t)
	state := domain.OrderState("SHIPPED")

	_, _, err := d.svc.ListOrders(context.Background(), ports.OrderListParams{
		ProfileID: "QmBuyer", Type: domain.OrderTypePurchase, State: &state,
	})
	requireAppCode(t, err, "ORD_007")
}

func TestOrderService_ListOrders_NormalizesPaging(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()

	d.orderRepo.EXPECT().List(ctx, ports.OrderListParams{
		ProfileID: "QmVendor", Type: domain.OrderTypeSale, Page: 1, PageSize: 20,
	}).Return([]domain.Order{{ID: "QmOrder1"}}, int64(1), nil)

	orders, total, err := d.svc.ListOrders(ctx, ports.OrderListParams{
		ProfileID: "QmVendor", Type: domain.OrderTypeSale, Page: 0, PageSize: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)
}

// ==================== SyncOrder ====================

func TestOrderService_SyncOrder_InvalidState(t *testing.T) {
	d := setupOrderService(t)

	_, err := d.svc.SyncOrder(context.Background(), ports.SyncOrderRequest{OrderID: "QmOrder1", State: "SHIPPED"})
	requireAppCode(t, err, "ORD_007")
}

func TestOrderService_SyncOrder_MalformedContract(t *testing.T) {
	d := setupOrderService(t)

	_, err := d.svc.SyncOrder(context.Background(), ports.SyncOrderRequest{
		OrderID: "QmOrder1", State: "AWAITING_PAYMENT", Contract: []byte(`{"buyerOrder":`),
	})
	requireAppCode(t, err, "ORD_005")
}

func TestOrderService_SyncOrder_CreatesOrder(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(nil, nil)
	d.orderRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, o *domain.Order) error {
			assert.Equal(t, domain.OrderStateAwaitingPayment, o.State)
			assert.Equal(t, "100", o.Price().String())
			return nil
		},
	)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return([]domain.PaymentTransaction{}, nil)
	d.cache.EXPECT().Invalidate(ctx, "QmOrder1").Return(nil)
	d.webhookSvc.EXPECT().EnqueueOrderEvent(ctx, EventOrderStateChanged, gomock.Any(), gomock.Any()).Return(nil)

	order, err := d.svc.SyncOrder(ctx, ports.SyncOrderRequest{
		OrderID:  "QmOrder1",
		BuyerID:  "QmBuyer",
		VendorID: "QmVendor",
		State:    "AWAITING_PAYMENT",
		Contract: []byte(`{"buyerOrder":{"payment":{"amount":"100"}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "QmOrder1", order.ID)
	assert.False(t, order.IsFunded())
}

func TestOrderService_SyncOrder_RejectsInvalidTransition(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	existing := newOrder(t, domain.OrderStateCompleted, false)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(existing, nil)

	_, err := d.svc.SyncOrder(ctx, ports.SyncOrderRequest{
		OrderID: "QmOrder1", BuyerID: "QmBuyer", VendorID: "QmVendor", State: "PENDING",
	})
	requireAppCode(t, err, "ORD_002")
}

func TestOrderService_SyncOrder_SameStateKeepsContractAndSkipsWebhook(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	existing := newOrder(t, domain.OrderStatePending, false)
	claim := "old claim"
	existing.DisputeClaim = &claim
	refund := ptx("refund-1", 100, 9)
	existing.RefundTransaction = &refund

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(existing, nil)
	d.orderRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, o *domain.Order) error {
			assert.Same(t, existing.Contract, o.Contract)
			assert.Equal(t, &claim, o.DisputeClaim)
			assert.Same(t, existing.RefundTransaction, o.RefundTransaction)
			return nil
		},
	)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil)
	d.cache.EXPECT().Invalidate(ctx, "QmOrder1").Return(nil)

	_, err := d.svc.SyncOrder(ctx, ports.SyncOrderRequest{
		OrderID: "QmOrder1", BuyerID: "QmBuyer", VendorID: "QmVendor", State: "PENDING",
	})
	require.NoError(t, err)
}

func TestOrderService_SyncOrder_RecordsRefundAndDisputePayout(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	existing := newOrder(t, domain.OrderStateDisputed, true)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(existing, nil)
	d.orderRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, o *domain.Order) error {
			require.NotNil(t, o.RefundTransaction)
			assert.Equal(t, "refund-1", o.RefundTransaction.TxID)
			assert.Equal(t, "QmOrder1", o.RefundTransaction.OrderID)
			assert.Equal(t, "0.6", o.RefundTransaction.Value.String())
			return nil
		},
	)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil)
	d.cache.EXPECT().Invalidate(ctx, "QmOrder1").Return(nil)
	d.webhookSvc.EXPECT().EnqueueOrderEvent(ctx, EventOrderStateChanged, gomock.Any(), gomock.Any()).Return(nil)

	order, err := d.svc.SyncOrder(ctx, ports.SyncOrderRequest{
		OrderID:     "QmOrder1",
		BuyerID:     "QmBuyer",
		VendorID:    "QmVendor",
		ModeratorID: existing.ModeratorID,
		State:       "DECIDED",
		Contract: []byte(`{"buyerOrder":{"payment":{"amount":"1"}},` +
			`"disputeResolution":{"payout":{"buyerOutput":{"amount":"0.6"},"vendorOutput":{"amount":"0.4"}}}}`),
		RefundTransaction: &ports.TransactionInput{TxID: "refund-1", Value: "0.6", Height: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, "0.4", order.Contract.Payout().VendorOutput.Value().String())
	assert.True(t, order.Contract.Payout().ModeratorOutput.Value().IsZero())
}

func TestOrderService_SyncOrder_BadRefundTransaction(t *testing.T) {
	tests := []struct {
		name   string
		refund ports.TransactionInput
		code   string
	}{
		{"missing txid", ports.TransactionInput{Value: "1"}, "TXN_001"},
		{"bad value", ports.TransactionInput{TxID: "r", Value: "abc"}, "TXN_001"},
		{"negative height", ports.TransactionInput{TxID: "r", Value: "1", Height: -1}, "TXN_001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupOrderService(t)
			refund := tt.refund
			_, err := d.svc.SyncOrder(context.Background(), ports.SyncOrderRequest{
				OrderID: "QmOrder1", BuyerID: "QmBuyer", VendorID: "QmVendor", State: "PENDING",
				RefundTransaction: &refund,
			})
			requireAppCode(t, err, tt.code)
		})
	}
}

func TestOrderService_SyncOrder_MalformedDisputePayout(t *testing.T) {
	d := setupOrderService(t)

	_, err := d.svc.SyncOrder(context.Background(), ports.SyncOrderRequest{
		OrderID: "QmOrder1", BuyerID: "QmBuyer", VendorID: "QmVendor", State: "DECIDED",
		Contract: []byte(`{"disputeResolution":{"payout":{"buyerOutput":{"amount":"half"}}}}`),
	})
	requireAppCode(t, err, "ORD_005")
}

// ==================== IngestTransactions ====================

func TestOrderService_IngestTransactions_Validation(t *testing.T) {
	tests := []struct {
		name string
		txs  []ports.TransactionInput
		code string
	}{
		{"malformed value", []ports.TransactionInput{{TxID: "a", Value: "1.2.3"}}, "TXN_001"},
		{"empty value", []ports.TransactionInput{{TxID: "a", Value: ""}}, "TXN_001"},
		{"negative height", []ports.TransactionInput{{TxID: "a", Value: "1", Height: -1}}, "TXN_001"},
		{"missing txid", []ports.TransactionInput{{Value: "1"}}, "TXN_001"},
		{"duplicate txid", []ports.TransactionInput{{TxID: "a", Value: "1"}, {TxID: "a", Value: "2"}}, "TXN_002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupOrderService(t)
			_, err := d.svc.IngestTransactions(context.Background(), ports.IngestTransactionsRequest{
				OrderID: "QmOrder1", Transactions: tt.txs,
			})
			requireAppCode(t, err, tt.code)
		})
	}
}

func TestOrderService_IngestTransactions_OrderNotFound(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(nil, nil)

	_, err := d.svc.IngestTransactions(ctx, ports.IngestTransactionsRequest{
		OrderID:      "QmOrder1",
		Transactions: []ports.TransactionInput{{TxID: "a", Value: "1"}},
	})
	requireAppCode(t, err, "ORD_001")
}

func TestOrderService_IngestTransactions_BecomesFunded(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	order := newOrder(t, domain.OrderStateAwaitingPayment, false)
	after := []domain.PaymentTransaction{ptx("a", 60, 10), ptx("b", 40, 0)}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(order, nil)
	gomock.InOrder(
		d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil),
		d.txRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).Return(nil).Times(2),
		d.txRepo.EXPECT().DeleteMissing(ctx, tx, "QmOrder1", []string{"a", "b"}).Return(int64(0), nil),
		d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(after, nil),
	)
	d.orderRepo.EXPECT().UpdateState(ctx, tx, "QmOrder1", domain.OrderStatePending, nil).Return(nil)
	d.cache.EXPECT().Set(ctx, gomock.Any(), time.Minute).Return(nil)
	d.webhookSvc.EXPECT().EnqueueOrderEvent(ctx, EventOrderFunded, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, o *domain.Order, _ *domain.FundingStatus) error {
			assert.Equal(t, domain.OrderStatePending, o.State)
			return nil
		},
	)

	funding, err := d.svc.IngestTransactions(ctx, ports.IngestTransactionsRequest{
		OrderID: "QmOrder1",
		Transactions: []ports.TransactionInput{
			{TxID: "a", Value: "60", Height: 10},
			{TxID: "b", Value: "40"},
		},
	})
	require.NoError(t, err)
	assert.True(t, funding.IsFunded)
	assert.True(t, funding.BalanceRemaining.IsZero())
	// The trailing payment is unconfirmed, so no funded height yet.
	assert.Equal(t, int64(0), funding.FundedBlockHeight)
}

func TestOrderService_IngestTransactions_PartialPaymentStaysAwaiting(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	order := newOrder(t, domain.OrderStateAwaitingPayment, false)
	after := []domain.PaymentTransaction{ptx("a", 50, 0)}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(order, nil)
	gomock.InOrder(
		d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil),
		d.txRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).Return(nil),
		d.txRepo.EXPECT().DeleteMissing(ctx, tx, "QmOrder1", []string{"a"}).Return(int64(0), nil),
		d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(after, nil),
	)
	d.cache.EXPECT().Set(ctx, gomock.Any(), time.Minute).Return(nil)
	d.webhookSvc.EXPECT().EnqueueOrderEvent(ctx, EventOrderFunded, gomock.Any(), gomock.Any()).Return(nil)

	funding, err := d.svc.IngestTransactions(ctx, ports.IngestTransactionsRequest{
		OrderID:      "QmOrder1",
		Transactions: []ports.TransactionInput{{TxID: "a", Value: "50"}},
	})
	require.NoError(t, err)
	assert.True(t, funding.IsPartiallyFunded)
	assert.Equal(t, "50", funding.BalanceRemaining.String())
}

func TestOrderService_IngestTransactions_NoChangeNoWebhook(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	order := newOrder(t, domain.OrderStatePending, false)
	txs := []domain.PaymentTransaction{ptx("a", 100, 10)}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(order, nil)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(txs, nil).Times(2)
	d.txRepo.EXPECT().Upsert(ctx, tx, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().DeleteMissing(ctx, tx, "QmOrder1", []string{"a"}).Return(int64(0), nil)
	d.cache.EXPECT().Set(ctx, gomock.Any(), time.Minute).Return(nil)

	funding, err := d.svc.IngestTransactions(ctx, ports.IngestTransactionsRequest{
		OrderID:      "QmOrder1",
		Transactions: []ports.TransactionInput{{TxID: "a", Value: "100", Height: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), funding.FundedBlockHeight)
}

func TestOrderService_IngestTransactions_CacheWriteFailureInvalidates(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	order := newOrder(t, domain.OrderStatePending, false)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(order, nil)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil).Times(2)
	d.txRepo.EXPECT().DeleteMissing(ctx, tx, "QmOrder1", []string{}).Return(int64(3), nil)
	d.cache.EXPECT().Set(ctx, gomock.Any(), time.Minute).Return(errors.New("redis unavailable"))
	d.cache.EXPECT().Invalidate(ctx, "QmOrder1").Return(nil)

	funding, err := d.svc.IngestTransactions(ctx, ports.IngestTransactionsRequest{OrderID: "QmOrder1"})
	require.NoError(t, err)
	assert.Equal(t, "100", funding.BalanceRemaining.String())
	assert.False(t, funding.IsFunded)
}

// ==================== CancelOrder ====================

func TestOrderService_CancelOrder_Success(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	order := newOrder(t, domain.OrderStatePending, false)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(order, nil)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return([]domain.PaymentTransaction{ptx("a", 100, 5)}, nil)
	d.orderRepo.EXPECT().UpdateState(ctx, tx, "QmOrder1", domain.OrderStateCanceled, nil).Return(nil)
	d.webhookSvc.EXPECT().EnqueueOrderEvent(ctx, EventOrderStateChanged, gomock.Any(), gomock.Any()).Return(nil)

	result, err := d.svc.CancelOrder(ctx, "QmOrder1", "QmBuyer")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStateCanceled, result.State)
}

func TestOrderService_CancelOrder_NotCancelable(t *testing.T) {
	tests := []struct {
		name      string
		state     domain.OrderState
		moderated bool
		txs       []domain.PaymentTransaction
		profileID string
	}{
		{"vendor cannot cancel", domain.OrderStatePending, false, []domain.PaymentTransaction{ptx("a", 100, 1)}, "QmVendor"},
		{"moderated order", domain.OrderStatePending, true, []domain.PaymentTransaction{ptx("a", 100, 1)}, "QmBuyer"},
		{"unfunded order", domain.OrderStatePending, false, nil, "QmBuyer"},
		{"overpaid order", domain.OrderStatePending, false, []domain.PaymentTransaction{ptx("a", 150, 1)}, "QmBuyer"},
		{"fulfilled order", domain.OrderStateFulfilled, false, []domain.PaymentTransaction{ptx("a", 100, 1)}, "QmBuyer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupOrderService(t)
			ctx := context.Background()
			tx := &mockTx{}

			d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
			d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(newOrder(t, tt.state, tt.moderated), nil)
			d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(tt.txs, nil)

			_, err := d.svc.CancelOrder(ctx, "QmOrder1", tt.profileID)
			requireAppCode(t, err, "ORD_003")
		})
	}
}

func TestOrderService_CancelOrder_NotFound(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(nil, nil)

	_, err := d.svc.CancelOrder(ctx, "QmOrder1", "QmBuyer")
	requireAppCode(t, err, "ORD_001")
}

func TestOrderService_TransitionsHiddenFromOutsiders(t *testing.T) {
	tests := []struct {
		name string
		call func(svc *OrderServiceImpl, ctx context.Context) error
	}{
		{"cancel", func(svc *OrderServiceImpl, ctx context.Context) error {
			_, err := svc.CancelOrder(ctx, "QmOrder1", "QmStranger")
			return err
		}},
		{"dispute", func(svc *OrderServiceImpl, ctx context.Context) error {
			_, err := svc.OpenDispute(ctx, ports.DisputeRequest{OrderID: "QmOrder1", ProfileID: "QmStranger", Claim: "never arrived"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupOrderService(t)
			ctx := context.Background()
			tx := &mockTx{}

			// Funded and moderated so both actions would otherwise fail with 422.
			d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
			d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(newOrder(t, domain.OrderStatePending, true), nil)
			d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return([]domain.PaymentTransaction{ptx("a", 100, 5)}, nil)

			requireAppCode(t, tt.call(d.svc, ctx), "ORD_001")
		})
	}
}

// ==================== OpenDispute ====================

func TestOrderService_OpenDispute_BuyerSuccess(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	order := newOrder(t, domain.OrderStateFulfilled, true)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(order, nil)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil)
	d.orderRepo.EXPECT().UpdateState(ctx, tx, "QmOrder1", domain.OrderStateDisputed, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, _ string, _ domain.OrderState, claim *string) error {
			require.NotNil(t, claim)
			assert.Equal(t, "item never arrived", *claim)
			return nil
		},
	)
	d.webhookSvc.EXPECT().EnqueueOrderEvent(ctx, EventOrderStateChanged, gomock.Any(), gomock.Any()).Return(errors.New("queue full"))

	result, err := d.svc.OpenDispute(ctx, ports.DisputeRequest{OrderID: "QmOrder1", ProfileID: "QmBuyer", Claim: "  item never arrived "})
	require.NoError(t, err, "webhook failures do not fail the dispute")
	assert.Equal(t, domain.OrderStateDisputed, result.State)
	require.NotNil(t, result.DisputeClaim)
	assert.Equal(t, "item never arrived", *result.DisputeClaim)
}

func TestOrderService_OpenDispute_ProcessingErrorNeedsFunding(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(newOrder(t, domain.OrderStateProcessingError, true), nil)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil)

	_, err := d.svc.OpenDispute(ctx, ports.DisputeRequest{OrderID: "QmOrder1", ProfileID: "QmBuyer", Claim: "vendor errored"})
	requireAppCode(t, err, "ORD_004")
}

func TestOrderService_OpenDispute_VendorNotInVendorStates(t *testing.T) {
	d := setupOrderService(t)
	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.orderRepo.EXPECT().GetByIDForUpdate(ctx, tx, "QmOrder1").Return(newOrder(t, domain.OrderStatePending, true), nil)
	d.txRepo.EXPECT().ListByOrderTx(ctx, tx, "QmOrder1").Return(nil, nil)

	_, err := d.svc.OpenDispute(ctx, ports.DisputeRequest{OrderID: "QmOrder1", ProfileID: "QmVendor", Claim: "buyer unresponsive"})
	requireAppCode(t, err, "ORD_004")
}

func TestOrderService_OpenDispute_EmptyClaim(t *testing.T) {
	d := setupOrderService(t)

	_, err := d.svc.OpenDispute(context.Background(), ports.DisputeRequest{OrderID: "QmOrder1", ProfileID: "QmBuyer", Claim: "   "})
	requireAppCode(t, err, "VAL_001")
}
