package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Feed Security (SEC) ----

func ErrInvalidAccessKey() *AppError {
	return New("SEC_001", "Invalid access key", http.StatusUnauthorized)
}

func ErrInvalidSignature() *AppError {
	return New("SEC_002", "Invalid signature", http.StatusUnauthorized)
}

func ErrTimestampExpired() *AppError {
	return New("SEC_003", "Request timestamp expired", http.StatusForbidden)
}

func ErrNonceUsed() *AppError {
	return New("SEC_004", "Nonce has already been used", http.StatusForbidden)
}

// ---- Orders (ORD) ----

func ErrNotFound(entity string) *AppError {
	return New("ORD_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("ORD_002", fmt.Sprintf("Order cannot move from %s to %s", from, to), http.StatusConflict)
}

func ErrOrderNotCancelable() *AppError {
	return New("ORD_003", "Order is not cancelable", http.StatusUnprocessableEntity)
}

func ErrOrderNotDisputable() *AppError {
	return New("ORD_004", "Order is not disputable", http.StatusUnprocessableEntity)
}

func ErrInvalidContract(err error) *AppError {
	return Wrap("ORD_005", "Malformed order contract", http.StatusBadRequest, err)
}

func ErrInvalidOrderType() *AppError {
	return New("ORD_006", "Type needs to be one of sale, purchase", http.StatusBadRequest)
}

func ErrInvalidOrderState(state string) *AppError {
	return New("ORD_007", fmt.Sprintf("Unknown order state %q", state), http.StatusBadRequest)
}

// ---- Transactions (TXN) ----

func ErrInvalidTransaction(txID string, reason string) *AppError {
	return New("TXN_001", fmt.Sprintf("Invalid transaction %q: %s", txID, reason), http.StatusBadRequest)
}

func ErrDuplicateTransaction(txID string) *AppError {
	return New("TXN_002", fmt.Sprintf("Transaction %q listed more than once", txID), http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrUsernameExists() *AppError {
	return New("AUTH_002", "Username already exists", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrProfileExists() *AppError {
	return New("AUTH_004", "Profile already registered", http.StatusConflict)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrCacheFailure(err error) *AppError {
	return Wrap("SYS_002", "Cache failure", http.StatusServiceUnavailable, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a VAL_001 validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
