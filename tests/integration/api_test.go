package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/config"
	httpHandler "github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/http/handler"
	redisStorage "github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/storage/redis"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/service"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	feedAccessKey = "feed-access-key"
	feedSecretKey = "feed-secret-key-0123456789abcdef"
)

// testApp wires the real HTTP layer, middleware, handlers, services and
// Redis stores (miniredis) over in-memory postgres repositories.
type testApp struct {
	server   *httptest.Server
	redis    *miniredis.Miniredis
	hooks    *webhookRecorder
	audit    *inMemoryAuditRepo
	orders   *inMemoryOrderRepo
	nonceSeq atomic.Int64
}

// webhookRecorder captures delivered order events.
type webhookRecorder struct {
	server *httptest.Server
	mu     sync.Mutex
	events []service.WebhookPayload
}

func newWebhookRecorder() *webhookRecorder {
	rec := &webhookRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p service.WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			rec.mu.Lock()
			rec.events = append(rec.events, p)
			rec.mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return rec
}

func (r *webhookRecorder) count(eventType, orderID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == eventType && e.Data.OrderID == orderID {
			n++
		}
	}
	return n
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	fundingCache := redisStorage.NewFundingCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)

	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")

	orderRepo := newInMemoryOrderRepo()
	txRepo := newInMemoryPaymentTxRepo()
	profileRepo := newInMemoryProfileRepo()
	auditRepo := &inMemoryAuditRepo{}
	transactor := newLockingTransactor()

	hooks := newWebhookRecorder()
	log := logger.New("debug", false)

	webhookSvc := service.NewWebhookService(config.WebhookConfig{
		URL:     hooks.server.URL,
		Secret:  "webhook-secret",
		Timeout: 2 * time.Second,
	}, sigSvc, nil, log)
	orderSvc := service.NewOrderService(orderRepo, txRepo, fundingCache, webhookSvc, transactor, time.Minute, log)
	authSvc := service.NewAuthService(profileRepo, hashSvc, tokenSvc)
	auditSvc := service.NewAuditService(auditRepo, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Mode:       "test",
		AuthSvc:    authSvc,
		OrderSvc:   orderSvc,
		SigSvc:     sigSvc,
		NonceStore: nonceStore,
		TokenSvc:   tokenSvc,
		Feed: config.FeedConfig{
			AccessKey: feedAccessKey,
			SecretKey: feedSecretKey,
		},
		AuditSvc: auditSvc,
		Logger:   log,
	})

	return &testApp{
		server: httptest.NewServer(router),
		redis:  mr,
		hooks:  hooks,
		audit:  auditRepo,
		orders: orderRepo,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.hooks.server.Close()
	a.redis.Close()
}

// envelope is the success/error response wrapper.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
}

func decode(t *testing.T, resp *http.Response, out any) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

// signedFeedRequest builds a feed request signed with the configured feed
// credentials. An empty nonce gets a fresh one.
func (a *testApp) signedFeedRequest(t *testing.T, method, path, body, nonce string) *http.Request {
	t.Helper()
	if nonce == "" {
		nonce = fmt.Sprintf("nonce-%d-%d", a.nonceSeq.Add(1), time.Now().UnixNano())
	}
	ts := time.Now().Unix()

	sigSvc := service.NewHMACSignatureService()
	canonical := sigSvc.BuildCanonicalString(method, path, ts, nonce, body)

	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OB-Access-Key", feedAccessKey)
	req.Header.Set("X-OB-Signature", sigSvc.Sign(feedSecretKey, canonical))
	req.Header.Set("X-OB-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-OB-Nonce", nonce)
	return req
}

func (a *testApp) feed(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	resp, err := http.DefaultClient.Do(a.signedFeedRequest(t, method, path, body, ""))
	require.NoError(t, err)
	return resp
}

func (a *testApp) syncOrder(t *testing.T, orderID, buyer, vendor, moderator, state, amount string) {
	t.Helper()
	payload := map[string]any{
		"buyer_id":  buyer,
		"vendor_id": vendor,
		"state":     state,
		"contract": map[string]any{
			"buyerOrder": map[string]any{
				"payment": map[string]any{"amount": amount, "coin": "BTC", "moderator": moderator},
			},
		},
	}
	if moderator != "" {
		payload["moderator_id"] = moderator
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp := a.feed(t, http.MethodPut, "/api/v1/feed/orders/"+orderID, string(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func (a *testApp) authed(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, a.server.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func registerAndLogin(t *testing.T, app *testApp, peerID, username string) string {
	t.Helper()

	regBody, _ := json.Marshal(map[string]string{
		"peer_id":  peerID,
		"username": username,
		"password": "StrongPass123!",
	})
	resp, err := http.Post(app.server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(regBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	loginBody, _ := json.Marshal(map[string]string{
		"username": username,
		"password": "StrongPass123!",
	})
	resp, err = http.Post(app.server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		Token string `json:"token"`
	}
	decode(t, resp, &login)
	require.NotEmpty(t, login.Token)
	return login.Token
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_RegisterAndLogin(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "QmBuyer1", "buyer1")
	assert.NotEmpty(t, token)

	assert.Eventually(t, func() bool {
		return len(app.audit.actions()) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []domain.AuditAction{domain.AuditActionRegister, domain.AuditActionLogin}, app.audit.actions())
}

func TestIntegration_LoginWrongCredentials(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	loginBody, _ := json.Marshal(map[string]string{
		"username": "nobody",
		"password": "wrongpassword",
	})
	resp, err := http.Post(app.server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "AUTH_001", decode(t, resp, nil).ErrorCode)
}

func TestIntegration_DuplicateUsername(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	registerAndLogin(t, app, "QmBuyer1", "buyer1")

	regBody, _ := json.Marshal(map[string]string{
		"peer_id":  "QmBuyer2",
		"username": "buyer1",
		"password": "StrongPass123!",
	})
	resp, err := http.Post(app.server.URL+"/api/v1/auth/register", "application/json", bytes.NewReader(regBody))
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "AUTH_002", decode(t, resp, nil).ErrorCode)
}

func TestIntegration_FundAndCancelOrder(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "QmBuyer1", "buyer1")
	app.syncOrder(t, "order-1", "QmBuyer1", "QmVendor1", "", "AWAITING_PAYMENT", "1.5")

	// Partial payment leaves the order awaiting the rest.
	resp := app.feed(t, http.MethodPut, "/api/v1/feed/orders/order-1/transactions",
		`{"transactions":[{"txid":"tx-1","value":"0.5","height":0}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var funding struct {
		BalanceRemaining  string `json:"balance_remaining"`
		IsFunded          bool   `json:"is_funded"`
		IsPartiallyFunded bool   `json:"is_partially_funded"`
		FundedBlockHeight int64  `json:"funded_block_height"`
		PaymentsIn        int    `json:"payments_in"`
	}
	decode(t, resp, &funding)
	assert.Equal(t, "1", funding.BalanceRemaining)
	assert.True(t, funding.IsPartiallyFunded)

	resp = app.authed(t, http.MethodGet, "/api/v1/orders/order-1", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order struct {
		State        string `json:"state"`
		Type         string `json:"type"`
		IsCancelable bool   `json:"is_cancelable"`
		Transactions []struct {
			TxID string `json:"txid"`
		} `json:"payment_address_transactions"`
	}
	decode(t, resp, &order)
	assert.Equal(t, "AWAITING_PAYMENT", order.State)
	assert.Equal(t, "purchase", order.Type)
	require.Len(t, order.Transactions, 1)

	// The full snapshot covers the price.
	resp = app.feed(t, http.MethodPut, "/api/v1/feed/orders/order-1/transactions",
		`{"transactions":[{"txid":"tx-1","value":"0.5","height":10},{"txid":"tx-2","value":"1","height":12}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Funding-Fingerprint"))
	resp.Body.Close()

	resp = app.authed(t, http.MethodGet, "/api/v1/orders/order-1/funding", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &funding)
	assert.True(t, funding.IsFunded)
	assert.False(t, funding.IsPartiallyFunded)
	assert.Equal(t, "0", funding.BalanceRemaining)
	assert.Equal(t, int64(12), funding.FundedBlockHeight)
	assert.Equal(t, 2, funding.PaymentsIn)

	resp = app.authed(t, http.MethodGet, "/api/v1/orders/order-1", token, "")
	decode(t, resp, &order)
	assert.Equal(t, "PENDING", order.State)
	assert.True(t, order.IsCancelable)

	resp = app.authed(t, http.MethodPost, "/api/v1/orders/order-1/cancel", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &order)
	assert.Equal(t, "CANCELED", order.State)

	// Canceled is terminal.
	resp = app.authed(t, http.MethodPost, "/api/v1/orders/order-1/cancel", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	assert.Eventually(t, func() bool {
		return app.hooks.count(service.EventOrderFunded, "order-1") >= 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestIntegration_OpenDispute(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	buyerToken := registerAndLogin(t, app, "QmBuyer1", "buyer1")
	vendorToken := registerAndLogin(t, app, "QmVendor1", "vendor1")
	app.syncOrder(t, "order-2", "QmBuyer1", "QmVendor1", "QmModerator1", "AWAITING_PAYMENT", "2")

	resp := app.feed(t, http.MethodPut, "/api/v1/feed/orders/order-2/transactions",
		`{"transactions":[{"txid":"tx-a","value":"2","height":5}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Moderated orders cannot be canceled.
	resp = app.authed(t, http.MethodPost, "/api/v1/orders/order-2/cancel", buyerToken, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "ORD_003", decode(t, resp, nil).ErrorCode)

	// A vendor cannot dispute a PENDING order.
	resp = app.authed(t, http.MethodPost, "/api/v1/orders/order-2/dispute", vendorToken, `{"claim":"buyer vanished"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// Claims are trimmed but otherwise stored as written.
	resp = app.authed(t, http.MethodPost, "/api/v1/orders/order-2/dispute", buyerToken, `{"claim":"  item <2 days late & \"never\" shipped "}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order struct {
		State        string `json:"state"`
		DisputeClaim string `json:"dispute_claim"`
	}
	decode(t, resp, &order)
	assert.Equal(t, "DISPUTED", order.State)
	assert.Equal(t, `item <2 days late & "never" shipped`, order.DisputeClaim)

	resp = app.authed(t, http.MethodGet, "/api/v1/orders?type=sale", vendorToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page struct {
		Items []struct {
			OrderID string `json:"order_id"`
			State   string `json:"state"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	decode(t, resp, &page)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "DISPUTED", page.Items[0].State)
}

func TestIntegration_OrderHiddenFromOutsiders(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "QmStranger", "stranger")
	app.syncOrder(t, "order-3", "QmBuyer1", "QmVendor1", "", "AWAITING_PAYMENT", "1")

	resp := app.authed(t, http.MethodGet, "/api/v1/orders/order-3", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ORD_001", decode(t, resp, nil).ErrorCode)
}

func TestIntegration_OrderActionsHiddenFromOutsiders(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	buyer := registerAndLogin(t, app, "QmBuyer1", "buyer1")
	stranger := registerAndLogin(t, app, "QmStranger", "stranger")
	app.syncOrder(t, "order-5", "QmBuyer1", "QmVendor1", "QmMod1", "AWAITING_PAYMENT", "1")

	resp := app.feed(t, http.MethodPut, "/api/v1/feed/orders/order-5/transactions",
		`{"transactions":[{"txid":"tx-1","value":"1","height":3}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	for _, orderID := range []string{"order-5", "order-missing"} {
		resp = app.authed(t, http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", stranger, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, orderID)
		assert.Equal(t, "ORD_001", decode(t, resp, nil).ErrorCode, orderID)

		resp = app.authed(t, http.MethodPost, "/api/v1/orders/"+orderID+"/dispute", stranger, `{"claim":"never arrived"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, orderID)
		assert.Equal(t, "ORD_001", decode(t, resp, nil).ErrorCode, orderID)
	}

	resp = app.authed(t, http.MethodGet, "/api/v1/orders/order-5", buyer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order struct {
		State string `json:"state"`
	}
	decode(t, resp, &order)
	assert.Equal(t, "PENDING", order.State)
}

func TestIntegration_RefundAndDisputePayoutServed(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	buyer := registerAndLogin(t, app, "QmBuyer1", "buyer1")
	app.syncOrder(t, "order-6", "QmBuyer1", "QmVendor1", "QmMod1", "DISPUTED", "2")

	body := `{"buyer_id":"QmBuyer1","vendor_id":"QmVendor1","moderator_id":"QmMod1","state":"DECIDED",` +
		`"contract":{"buyerOrder":{"payment":{"amount":"2","coin":"BTC"}},` +
		`"disputeResolution":{"proposedBy":"QmMod1","payout":{"buyerOutput":{"amount":"1.8"},"moderatorOutput":{"amount":"0.2"}}}},` +
		`"refund_address_transaction":{"txid":"refund-1","value":"1.8","height":50}}`
	resp := app.feed(t, http.MethodPut, "/api/v1/feed/orders/order-6", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// A later snapshot without a refund keeps the stored one.
	resp = app.feed(t, http.MethodPut, "/api/v1/feed/orders/order-6",
		`{"buyer_id":"QmBuyer1","vendor_id":"QmVendor1","moderator_id":"QmMod1","state":"DECIDED"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.authed(t, http.MethodGet, "/api/v1/orders/order-6", buyer, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order struct {
		Refund *struct {
			TxID  string `json:"txid"`
			Value string `json:"value"`
		} `json:"refund_address_transaction"`
		Resolution *struct {
			Payout struct {
				Buyer     string `json:"buyer"`
				Vendor    string `json:"vendor"`
				Moderator string `json:"moderator"`
			} `json:"payout"`
		} `json:"dispute_resolution"`
	}
	decode(t, resp, &order)
	require.NotNil(t, order.Refund)
	assert.Equal(t, "refund-1", order.Refund.TxID)
	assert.Equal(t, "1.8", order.Refund.Value)
	require.NotNil(t, order.Resolution)
	assert.Equal(t, "1.8", order.Resolution.Payout.Buyer)
	assert.Equal(t, "0", order.Resolution.Payout.Vendor)
	assert.Equal(t, "0.2", order.Resolution.Payout.Moderator)
}

func TestIntegration_OrdersRequireToken(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/api/v1/orders?type=purchase")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestIntegration_FeedNonceReplay(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.syncOrder(t, "order-4", "QmBuyer1", "QmVendor1", "", "AWAITING_PAYMENT", "1")

	body := `{"transactions":[{"txid":"tx-1","value":"0.1","height":0}]}`
	path := "/api/v1/feed/orders/order-4/transactions"

	resp, err := http.DefaultClient.Do(app.signedFeedRequest(t, http.MethodPut, path, body, "replayed-nonce"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.DefaultClient.Do(app.signedFeedRequest(t, http.MethodPut, path, body, "replayed-nonce"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "SEC_004", decode(t, resp, nil).ErrorCode)
}

func TestIntegration_FeedBadSignature(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	req := app.signedFeedRequest(t, http.MethodPut, "/api/v1/feed/orders/order-5", `{"buyer_id":"a","vendor_id":"b","state":"PENDING"}`, "")
	req.Header.Set("X-OB-Signature", "00"+req.Header.Get("X-OB-Signature")[2:])

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "SEC_002", decode(t, resp, nil).ErrorCode)

	o, err := app.orders.GetByID(req.Context(), "order-5")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestIntegration_FeedRejectsMalformedTransaction(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.syncOrder(t, "order-6", "QmBuyer1", "QmVendor1", "", "AWAITING_PAYMENT", "1")

	resp := app.feed(t, http.MethodPut, "/api/v1/feed/orders/order-6/transactions",
		`{"transactions":[{"txid":"tx-1","value":"NaN","height":0}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "TXN_001", decode(t, resp, nil).ErrorCode)
}
