package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Contract is the subset of the signed order contract this service reads.
// The raw document is kept alongside so it can be stored and served unchanged.
type Contract struct {
	BuyerOrder *BuyerOrder `json:"buyerOrder,omitempty"`
	// Errors is set by the vendor when it failed to process the order.
	Errors []string `json:"errors,omitempty"`
	// DisputeResolution is set once the moderator has ruled on a dispute.
	DisputeResolution *DisputeResolution `json:"disputeResolution,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// BuyerOrder holds the buyer's side of the contract.
type BuyerOrder struct {
	Payment *ContractPayment `json:"payment,omitempty"`
}

// ContractPayment describes how the order is paid.
type ContractPayment struct {
	Amount    string `json:"amount"`
	Coin      string `json:"coin,omitempty"`
	Address   string `json:"address,omitempty"`
	Moderator string `json:"moderator,omitempty"`
}

// DisputeResolution is the moderator's ruling on a disputed order.
type DisputeResolution struct {
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	ProposedBy string         `json:"proposedBy,omitempty"`
	Resolution string         `json:"resolution,omitempty"`
	Payout     *DisputePayout `json:"payout,omitempty"`
}

// DisputePayout splits the escrowed funds between the parties. A party
// without an output receives nothing.
type DisputePayout struct {
	BuyerOutput     *PayoutOutput `json:"buyerOutput,omitempty"`
	VendorOutput    *PayoutOutput `json:"vendorOutput,omitempty"`
	ModeratorOutput *PayoutOutput `json:"moderatorOutput,omitempty"`
}

// PayoutOutput is one party's share of a dispute payout.
type PayoutOutput struct {
	Address string          `json:"address,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
}

// Value returns the paid out amount, zero for a nil output.
func (p *PayoutOutput) Value() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Amount
}

var errNegativePayout = errors.New("dispute payout amounts must not be negative")

func (p *DisputePayout) validate() error {
	if p == nil {
		return nil
	}
	for _, out := range []*PayoutOutput{p.BuyerOutput, p.VendorOutput, p.ModeratorOutput} {
		if out.Value().IsNegative() {
			return errNegativePayout
		}
	}
	return nil
}

// ParseContract decodes a raw contract document. Dispute payout amounts are
// decimal coin amounts; malformed or negative amounts fail the parse.
func ParseContract(raw []byte) (*Contract, error) {
	c := &Contract{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	if err := c.Payout().validate(); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	c.Raw = append(json.RawMessage(nil), raw...)
	return c, nil
}

// OrderPrice returns the agreed amount from buyerOrder.payment.amount.
// Missing or unparsable amounts resolve to zero.
func (c *Contract) OrderPrice() decimal.Decimal {
	if c == nil || c.BuyerOrder == nil || c.BuyerOrder.Payment == nil {
		return decimal.Zero
	}
	price, err := decimal.NewFromString(c.BuyerOrder.Payment.Amount)
	if err != nil || price.IsNegative() {
		return decimal.Zero
	}
	return price
}

// PaymentCoin returns the coin the order is paid in, if the contract names one.
func (c *Contract) PaymentCoin() string {
	if c == nil || c.BuyerOrder == nil || c.BuyerOrder.Payment == nil {
		return ""
	}
	return c.BuyerOrder.Payment.Coin
}

// Payout returns the dispute payout, nil until the dispute has been resolved
// with one.
func (c *Contract) Payout() *DisputePayout {
	if c == nil || c.DisputeResolution == nil {
		return nil
	}
	return c.DisputeResolution.Payout
}
