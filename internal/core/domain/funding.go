package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// FundingStatus is the derived payment state of an order at one point in time.
type FundingStatus struct {
	OrderID           string          `json:"order_id"`
	Price             decimal.Decimal `json:"price"`
	TotalPaid         decimal.Decimal `json:"total_paid"`
	BalanceRemaining  decimal.Decimal `json:"balance_remaining"`
	IsFunded          bool            `json:"is_funded"`
	IsPartiallyFunded bool            `json:"is_partially_funded"`
	FundedBlockHeight int64           `json:"funded_block_height"`
	PaymentsIn        int             `json:"payments_in"`
	Fingerprint       string          `json:"fingerprint"`
}

// PaymentsIn returns the transactions with a positive value, keeping their order.
func PaymentsIn(txs []PaymentTransaction) []PaymentTransaction {
	in := make([]PaymentTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsIncoming() {
			in = append(in, tx)
		}
	}
	return in
}

// TotalPaid sums the values of txs.
func TotalPaid(txs []PaymentTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Value)
	}
	return total
}

// BalanceRemaining returns price minus the sum of txs. Negative when overpaid.
func BalanceRemaining(price decimal.Decimal, txs []PaymentTransaction) decimal.Decimal {
	return price.Sub(TotalPaid(txs))
}

// IsPartiallyFunded reports 0 < balance < price. Both bounds are exclusive.
func IsPartiallyFunded(price decimal.Decimal, txs []PaymentTransaction) bool {
	balance := BalanceRemaining(price, txs)
	return balance.IsPositive() && balance.LessThan(price)
}

// IsFunded reports whether the order is partially funded or has a balance of
// exactly zero. An overpaid order (negative balance) is not reported as funded.
func IsFunded(price decimal.Decimal, txs []PaymentTransaction) bool {
	return IsPartiallyFunded(price, txs) || BalanceRemaining(price, txs).IsZero()
}

// FundedBlockHeight returns the block height at which the confirmed payments
// first covered the price, or 0 if they never did. Unconfirmed payments are
// ignored here even though they count toward the current balance.
func FundedBlockHeight(price decimal.Decimal, payments []PaymentTransaction) int64 {
	confirmed := make([]PaymentTransaction, 0, len(payments))
	for _, p := range payments {
		if p.IsConfirmed() {
			confirmed = append(confirmed, p)
		}
	}
	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].Height < confirmed[j].Height
	})

	paid := decimal.Zero
	for _, p := range confirmed {
		paid = paid.Add(p.Value)
		if !price.Sub(paid).IsPositive() {
			return p.Height
		}
	}
	return 0
}

// ComputeFunding evaluates all funding predicates for the given price and the
// full set of payment address transactions.
func ComputeFunding(orderID string, price decimal.Decimal, txs []PaymentTransaction) FundingStatus {
	in := PaymentsIn(txs)
	balance := BalanceRemaining(price, in)
	return FundingStatus{
		OrderID:           orderID,
		Price:             price,
		TotalPaid:         TotalPaid(in),
		BalanceRemaining:  balance,
		IsFunded:          IsFunded(price, in),
		IsPartiallyFunded: IsPartiallyFunded(price, in),
		FundedBlockHeight: FundedBlockHeight(price, in),
		PaymentsIn:        len(in),
		Fingerprint:       TransactionFingerprint(price, txs),
	}
}

// TransactionFingerprint identifies a price and transaction snapshot. Two
// snapshots with the same fingerprint produce the same FundingStatus.
func TransactionFingerprint(price decimal.Decimal, txs []PaymentTransaction) string {
	h := sha256.New()
	h.Write([]byte(price.String()))
	for _, tx := range txs {
		h.Write([]byte{'|'})
		h.Write([]byte(tx.TxID))
		h.Write([]byte{':'})
		h.Write([]byte(tx.Value.String()))
		h.Write([]byte{':'})
		h.Write([]byte(strconv.FormatInt(tx.Height, 10)))
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
