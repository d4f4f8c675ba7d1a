package dto

import (
	"encoding/json"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
)

// RegisterRequest is the request body for profile registration.
type RegisterRequest struct {
	PeerID   string `json:"peer_id" binding:"required,max=100,safe_id"`
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Handle   string `json:"handle,omitempty" binding:"max=100"`
}

// LoginRequest is the request body for profile login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	PeerID   string `json:"peer_id"`
	Username string `json:"username"`
	Handle   string `json:"handle,omitempty"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// OrderListQuery is bound from the query string of GET /orders.
type OrderListQuery struct {
	Type     string `form:"type"`
	State    string `form:"state"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// DisputeRequest is the request body for opening a dispute.
type DisputeRequest struct {
	Claim string `json:"claim" binding:"required,max=4000"`
}

// SyncOrderRequest is the feed payload describing an order snapshot.
type SyncOrderRequest struct {
	BuyerID     string          `json:"buyer_id" binding:"required,max=100,safe_id"`
	VendorID    string          `json:"vendor_id" binding:"required,max=100,safe_id"`
	ModeratorID *string         `json:"moderator_id,omitempty" binding:"omitempty,max=100,safe_id"`
	State       string          `json:"state" binding:"required"`
	Contract    json.RawMessage `json:"contract,omitempty"`
	// RefundAddressTransaction is omitted until the vendor refunds the buyer.
	RefundAddressTransaction *TransactionRequest `json:"refund_address_transaction,omitempty"`
}

// TransactionRequest is one entry of a payment address snapshot.
type TransactionRequest struct {
	TxID      string     `json:"txid" binding:"required,max=128,safe_id"`
	Value     string     `json:"value" binding:"required,decimal"`
	Height    int64      `json:"height" binding:"gte=0"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// IngestTransactionsRequest is the feed payload replacing an order's payment
// address transactions.
type IngestTransactionsRequest struct {
	Transactions []TransactionRequest `json:"transactions" binding:"omitempty,dive"`
}

// TransactionResponse is a payment address transaction as served to clients.
type TransactionResponse struct {
	TxID      string  `json:"txid"`
	Value     string  `json:"value"`
	Height    int64   `json:"height"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// OrderResponse is an order as served to clients.
type OrderResponse struct {
	OrderID               string                     `json:"order_id"`
	Type                  string                     `json:"type,omitempty"`
	BuyerID               string                     `json:"buyer_id"`
	VendorID              string                     `json:"vendor_id"`
	ModeratorID           *string                    `json:"moderator_id,omitempty"`
	State                 string                     `json:"state"`
	Coin                  string                     `json:"coin,omitempty"`
	Price                 string                     `json:"price"`
	DisputeClaim          *string                    `json:"dispute_claim,omitempty"`
	VendorProcessingError bool                       `json:"vendor_processing_error"`
	IsCancelable          bool                       `json:"is_cancelable"`
	IsDisputable          bool                       `json:"is_disputable"`
	Contract              json.RawMessage            `json:"contract,omitempty"`
	Transactions          []TransactionResponse      `json:"payment_address_transactions"`
	RefundTransaction     *TransactionResponse       `json:"refund_address_transaction,omitempty"`
	DisputeResolution     *DisputeResolutionResponse `json:"dispute_resolution,omitempty"`
	CreatedAt             string                     `json:"created_at"`
	UpdatedAt             string                     `json:"updated_at"`
}

// DisputeResolutionResponse is the moderator's ruling with the payout per
// party as decimal coin amounts.
type DisputeResolutionResponse struct {
	ProposedBy string          `json:"proposed_by,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
	Timestamp  *string         `json:"timestamp,omitempty"`
	Payout     *PayoutResponse `json:"payout,omitempty"`
}

// PayoutResponse holds the amount each party receives. Parties without an
// output receive "0".
type PayoutResponse struct {
	Buyer     string `json:"buyer"`
	Vendor    string `json:"vendor"`
	Moderator string `json:"moderator"`
}

// FundingResponse is the funding state of an order.
type FundingResponse struct {
	OrderID           string `json:"order_id"`
	Price             string `json:"price"`
	TotalPaid         string `json:"total_paid"`
	BalanceRemaining  string `json:"balance_remaining"`
	IsFunded          bool   `json:"is_funded"`
	IsPartiallyFunded bool   `json:"is_partially_funded"`
	FundedBlockHeight int64  `json:"funded_block_height"`
	PaymentsIn        int    `json:"payments_in"`
}

// NewOrderResponse converts a domain order into its response shape as seen
// by profileID. Transactions are included when the order carries them.
func NewOrderResponse(o *domain.Order, profileID string) OrderResponse {
	resp := OrderResponse{
		OrderID:               o.ID,
		BuyerID:               o.BuyerID,
		VendorID:              o.VendorID,
		ModeratorID:           o.ModeratorID,
		State:                 string(o.State),
		Coin:                  o.Contract.PaymentCoin(),
		Price:                 o.Price().String(),
		DisputeClaim:          o.DisputeClaim,
		VendorProcessingError: o.VendorProcessingError(),
		IsCancelable:          o.IsCancelable(profileID),
		IsDisputable:          o.IsDisputable(profileID),
		Transactions:          make([]TransactionResponse, 0, len(o.Transactions)),
		CreatedAt:             o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             o.UpdatedAt.Format(time.RFC3339),
	}
	if t, ok := o.TypeFor(profileID); ok {
		resp.Type = string(t)
	}
	if o.Contract != nil && len(o.Contract.Raw) > 0 {
		resp.Contract = o.Contract.Raw
	}
	for _, tx := range o.Transactions {
		resp.Transactions = append(resp.Transactions, NewTransactionResponse(tx))
	}
	if o.RefundTransaction != nil {
		refund := NewTransactionResponse(*o.RefundTransaction)
		resp.RefundTransaction = &refund
	}
	if o.Contract != nil && o.Contract.DisputeResolution != nil {
		resp.DisputeResolution = NewDisputeResolutionResponse(o.Contract.DisputeResolution)
	}
	return resp
}

// NewTransactionResponse converts a payment transaction.
func NewTransactionResponse(tx domain.PaymentTransaction) TransactionResponse {
	resp := TransactionResponse{
		TxID:   tx.TxID,
		Value:  tx.Value.String(),
		Height: tx.Height,
	}
	if tx.Timestamp != nil {
		s := tx.Timestamp.Format(time.RFC3339)
		resp.Timestamp = &s
	}
	return resp
}

// NewDisputeResolutionResponse converts a dispute resolution.
func NewDisputeResolutionResponse(r *domain.DisputeResolution) *DisputeResolutionResponse {
	resp := &DisputeResolutionResponse{
		ProposedBy: r.ProposedBy,
		Resolution: r.Resolution,
	}
	if r.Timestamp != nil {
		s := r.Timestamp.Format(time.RFC3339)
		resp.Timestamp = &s
	}
	if p := r.Payout; p != nil {
		resp.Payout = &PayoutResponse{
			Buyer:     p.BuyerOutput.Value().String(),
			Vendor:    p.VendorOutput.Value().String(),
			Moderator: p.ModeratorOutput.Value().String(),
		}
	}
	return resp
}

// NewFundingResponse converts a funding status.
func NewFundingResponse(f *domain.FundingStatus) FundingResponse {
	return FundingResponse{
		OrderID:           f.OrderID,
		Price:             f.Price.String(),
		TotalPaid:         f.TotalPaid.String(),
		BalanceRemaining:  f.BalanceRemaining.String(),
		IsFunded:          f.IsFunded,
		IsPartiallyFunded: f.IsPartiallyFunded,
		FundedBlockHeight: f.FundedBlockHeight,
		PaymentsIn:        f.PaymentsIn,
	}
}
