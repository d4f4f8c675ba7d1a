package domain

import "fmt"

// OrderState represents the lifecycle state of an order.
type OrderState string

const (
	OrderStateAwaitingPayment     OrderState = "AWAITING_PAYMENT"
	OrderStatePending             OrderState = "PENDING"
	OrderStateAwaitingFulfillment OrderState = "AWAITING_FULFILLMENT"
	OrderStatePartiallyFulfilled  OrderState = "PARTIALLY_FULFILLED"
	OrderStateFulfilled           OrderState = "FULFILLED"
	OrderStateCompleted           OrderState = "COMPLETED"
	OrderStateCanceled            OrderState = "CANCELED"
	OrderStateDeclined            OrderState = "DECLINED"
	OrderStateRefunded            OrderState = "REFUNDED"
	OrderStateDisputed            OrderState = "DISPUTED"
	OrderStateDecided             OrderState = "DECIDED"
	OrderStateResolved            OrderState = "RESOLVED"
	OrderStatePaymentFinalized    OrderState = "PAYMENT_FINALIZED"
	OrderStateProcessingError     OrderState = "PROCESSING_ERROR"
)

// orderTransitions lists the states each state may move to. States without
// an entry are terminal.
var orderTransitions = map[OrderState][]OrderState{
	OrderStateAwaitingPayment: {
		OrderStatePending,
		OrderStateCanceled,
		OrderStateProcessingError,
	},
	OrderStatePending: {
		OrderStateAwaitingFulfillment,
		OrderStateCanceled,
		OrderStateDeclined,
		OrderStateDisputed,
		OrderStateProcessingError,
	},
	OrderStateProcessingError: {
		OrderStateCanceled,
		OrderStateDisputed,
	},
	OrderStateAwaitingFulfillment: {
		OrderStatePartiallyFulfilled,
		OrderStateFulfilled,
		OrderStateRefunded,
		OrderStateDisputed,
	},
	OrderStatePartiallyFulfilled: {
		OrderStateFulfilled,
		OrderStateRefunded,
		OrderStateDisputed,
	},
	OrderStateFulfilled: {
		OrderStateCompleted,
		OrderStateDisputed,
		OrderStatePaymentFinalized,
	},
	OrderStateDisputed: {
		OrderStateDecided,
	},
	OrderStateDecided: {
		OrderStateResolved,
	},
}

var allOrderStates = map[OrderState]struct{}{
	OrderStateAwaitingPayment:     {},
	OrderStatePending:             {},
	OrderStateAwaitingFulfillment: {},
	OrderStatePartiallyFulfilled:  {},
	OrderStateFulfilled:           {},
	OrderStateCompleted:           {},
	OrderStateCanceled:            {},
	OrderStateDeclined:            {},
	OrderStateRefunded:            {},
	OrderStateDisputed:            {},
	OrderStateDecided:             {},
	OrderStateResolved:            {},
	OrderStatePaymentFinalized:    {},
	OrderStateProcessingError:     {},
}

// ParseOrderState converts s to an OrderState, rejecting unknown values.
func ParseOrderState(s string) (OrderState, error) {
	state := OrderState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("unknown order state %q", s)
	}
	return state, nil
}

// IsValid returns true if s is one of the declared order states.
func (s OrderState) IsValid() bool {
	_, ok := allOrderStates[s]
	return ok
}

// IsTerminal returns true if no transition leaves s.
func (s OrderState) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransitionTo reports whether the transition table allows s -> next.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsCancelable returns true for states in which a buyer may still cancel.
func (s OrderState) IsCancelable() bool {
	switch s {
	case OrderStatePending, OrderStateProcessingError:
		return true
	}
	return false
}

// isBuyerDisputable covers the states a buyer may always dispute from.
// PROCESSING_ERROR additionally requires a funded order and is handled by Order.
func (s OrderState) isBuyerDisputable() bool {
	switch s {
	case OrderStateAwaitingFulfillment, OrderStatePending, OrderStateFulfilled:
		return true
	}
	return false
}

func (s OrderState) isVendorDisputable() bool {
	switch s {
	case OrderStatePartiallyFulfilled, OrderStateFulfilled:
		return true
	}
	return false
}
