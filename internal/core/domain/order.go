package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the order as seen from the local profile.
type OrderType string

const (
	OrderTypeSale     OrderType = "sale"
	OrderTypePurchase OrderType = "purchase"
)

// ParseOrderType converts s to an OrderType.
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(s) {
	case OrderTypeSale, OrderTypePurchase:
		return OrderType(s), nil
	}
	return "", fmt.Errorf("type needs to be one of %s, %s", OrderTypeSale, OrderTypePurchase)
}

// Order is a marketplace order between a buyer and a vendor, optionally moderated.
type Order struct {
	ID           string               `json:"order_id"`
	BuyerID      string               `json:"buyer_id"`
	VendorID     string               `json:"vendor_id"`
	ModeratorID  *string              `json:"moderator_id,omitempty"`
	State        OrderState           `json:"state"`
	Contract     *Contract            `json:"-"`
	DisputeClaim *string              `json:"dispute_claim,omitempty"`
	Transactions []PaymentTransaction `json:"payment_address_transactions"`
	// RefundTransaction is the vendor's refund to the buyer's refund address.
	RefundTransaction *PaymentTransaction `json:"refund_address_transaction,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Price returns the agreed order price, zero when the contract does not resolve one.
func (o *Order) Price() decimal.Decimal {
	return o.Contract.OrderPrice()
}

// IsModerated returns true if a moderator was chosen for the order.
func (o *Order) IsModerated() bool {
	return o.ModeratorID != nil && *o.ModeratorID != ""
}

// PaymentsIn returns the incoming payments on the payment address.
func (o *Order) PaymentsIn() []PaymentTransaction {
	return PaymentsIn(o.Transactions)
}

// Funding computes the order's current funding status.
func (o *Order) Funding() FundingStatus {
	return ComputeFunding(o.ID, o.Price(), o.Transactions)
}

// IsFunded reports whether the order is partially or fully funded.
func (o *Order) IsFunded() bool {
	return IsFunded(o.Price(), o.PaymentsIn())
}

// VendorProcessingError returns true if the vendor reported an error while
// processing the order. Unlike checking for PROCESSING_ERROR this stays true
// after the order has moved on from that state.
func (o *Order) VendorProcessingError() bool {
	return o.Contract != nil && o.Contract.Errors != nil
}

// TypeFor returns whether the order is a sale or a purchase for profileID.
func (o *Order) TypeFor(profileID string) (OrderType, bool) {
	switch profileID {
	case o.VendorID:
		return OrderTypeSale, true
	case o.BuyerID:
		return OrderTypePurchase, true
	}
	return "", false
}

// IsParticipant returns true if profileID is the buyer, the vendor or the
// moderator of the order.
func (o *Order) IsParticipant(profileID string) bool {
	if profileID == "" {
		return false
	}
	if _, ok := o.TypeFor(profileID); ok {
		return true
	}
	return o.IsModerated() && *o.ModeratorID == profileID
}

// IsCancelable returns true if profileID may cancel the order: only the buyer
// of an unmoderated, funded order in a cancelable state.
func (o *Order) IsCancelable(profileID string) bool {
	return o.BuyerID == profileID &&
		!o.IsModerated() &&
		o.State.IsCancelable() &&
		o.IsFunded()
}

// IsDisputable returns true if profileID may open a dispute on the order.
func (o *Order) IsDisputable(profileID string) bool {
	switch profileID {
	case o.BuyerID:
		return o.IsModerated() &&
			(o.State.isBuyerDisputable() ||
				(o.State == OrderStateProcessingError && o.IsFunded()))
	case o.VendorID:
		return o.IsModerated() && o.State.isVendorDisputable()
	}
	return false
}
