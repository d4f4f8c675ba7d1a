package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(profileID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	ProfileID string
}

// FundingCache memoizes computed funding status per order.
type FundingCache interface {
	// Get returns the cached status or nil if absent.
	Get(ctx context.Context, orderID string) (*domain.FundingStatus, error)
	Set(ctx context.Context, status *domain.FundingStatus, ttl time.Duration) error
	Invalidate(ctx context.Context, orderID string) error
}

// NonceStore remembers the nonces of signed feed requests per access key.
type NonceStore interface {
	// CheckAndSet claims nonce for ttl. It returns false if the nonce is
	// already claimed.
	CheckAndSet(ctx context.Context, accessKey string, nonce string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// OrderService defines order hydration, funding queries and buyer/vendor actions.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// GetFunding evaluates the funding predicates for a hydrated order,
	// memoized on the order's transaction set.
	GetFunding(ctx context.Context, order *domain.Order) (*domain.FundingStatus, error)
	ListOrders(ctx context.Context, params OrderListParams) ([]domain.Order, int64, error)
	SyncOrder(ctx context.Context, req SyncOrderRequest) (*domain.Order, error)
	IngestTransactions(ctx context.Context, req IngestTransactionsRequest) (*domain.FundingStatus, error)
	CancelOrder(ctx context.Context, orderID string, profileID string) (*domain.Order, error)
	OpenDispute(ctx context.Context, req DisputeRequest) (*domain.Order, error)
}

// SyncOrderRequest holds an order snapshot pushed by the wallet feed.
type SyncOrderRequest struct {
	OrderID     string
	BuyerID     string
	VendorID    string
	ModeratorID *string
	State       string
	Contract    []byte
	// RefundTransaction is the refund paid to the buyer's refund address.
	// Nil keeps the stored one.
	RefundTransaction *TransactionInput
}

// IngestTransactionsRequest holds a payment address transaction snapshot.
type IngestTransactionsRequest struct {
	OrderID      string
	Transactions []TransactionInput
}

// TransactionInput is a raw transaction as reported by the wallet.
// Value is kept as a string so malformed amounts can be rejected here.
type TransactionInput struct {
	TxID      string
	Value     string
	Height    int64
	Timestamp *time.Time
}

// DisputeRequest holds input for opening a dispute.
type DisputeRequest struct {
	OrderID   string
	ProfileID string
	Claim     string
}

// AuthService defines profile authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Profile, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for profile registration.
type RegisterRequest struct {
	PeerID   string
	Username string
	Password string
	Handle   string
}

// WebhookService defines async order event delivery.
type WebhookService interface {
	EnqueueOrderEvent(ctx context.Context, eventType string, order *domain.Order, funding *domain.FundingStatus) error
}

// AuditService records audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
