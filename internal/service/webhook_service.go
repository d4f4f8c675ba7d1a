package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/config"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultRetryIntervals is the wait before each redelivery attempt.
var defaultRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Order event types
const (
	EventOrderFunded       = "ORDER_FUNDED"
	EventOrderStateChanged = "ORDER_STATE_CHANGED"
)

// SignatureHeader carries the hex HMAC-SHA256 of the payload's data object.
const SignatureHeader = "X-OB-Signature"

// WebhookPayload is the JSON structure posted to the configured webhook URL.
type WebhookPayload struct {
	EventType string             `json:"event_type"`
	Data      WebhookPayloadData `json:"data"`
	Signature string             `json:"signature"`
}

// WebhookPayloadData holds the order and funding snapshot in the webhook.
type WebhookPayloadData struct {
	OrderID           string `json:"order_id"`
	State             string `json:"state"`
	BuyerID           string `json:"buyer_id"`
	VendorID          string `json:"vendor_id"`
	Coin              string `json:"coin,omitempty"`
	Price             string `json:"price"`
	TotalPaid         string `json:"total_paid"`
	BalanceRemaining  string `json:"balance_remaining"`
	IsFunded          bool   `json:"is_funded"`
	FundedBlockHeight int64  `json:"funded_block_height"`
	Timestamp         int64  `json:"timestamp"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookServiceImpl implements ports.WebhookService.
type WebhookServiceImpl struct {
	url            string
	secret         string
	sigSvc         ports.SignatureService
	httpClient     HTTPClient
	retryIntervals []time.Duration
	deliveries     ports.WebhookDeliveryRepository // nil = deliveries are not recorded
	log            zerolog.Logger
}

// NewWebhookService creates a new webhook service. A nil httpClient gets a
// client using cfg.Timeout.
func NewWebhookService(
	cfg config.WebhookConfig,
	sigSvc ports.SignatureService,
	httpClient HTTPClient,
	log zerolog.Logger,
) *WebhookServiceImpl {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &WebhookServiceImpl{
		url:            cfg.URL,
		secret:         cfg.Secret,
		sigSvc:         sigSvc,
		httpClient:     httpClient,
		retryIntervals: defaultRetryIntervals,
		log:            log,
	}
}

// WithDeliveryLog records every delivery and its attempts in repo.
func (s *WebhookServiceImpl) WithDeliveryLog(repo ports.WebhookDeliveryRepository) *WebhookServiceImpl {
	s.deliveries = repo
	return s
}

// EnqueueOrderEvent signs an order event and delivers it asynchronously with retries.
func (s *WebhookServiceImpl) EnqueueOrderEvent(ctx context.Context, eventType string, order *domain.Order, funding *domain.FundingStatus) error {
	if s.url == "" {
		s.log.Debug().Str("order_id", order.ID).Msg("webhook: no URL configured, skipping")
		return nil
	}

	data := WebhookPayloadData{
		OrderID:   order.ID,
		State:     string(order.State),
		BuyerID:   order.BuyerID,
		VendorID:  order.VendorID,
		Coin:      order.Contract.PaymentCoin(),
		Timestamp: time.Now().Unix(),
	}
	if funding != nil {
		data.Price = funding.Price.String()
		data.TotalPaid = funding.TotalPaid.String()
		data.BalanceRemaining = funding.BalanceRemaining.String()
		data.IsFunded = funding.IsFunded
		data.FundedBlockHeight = funding.FundedBlockHeight
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal webhook data: %w", err)
	}
	signature := s.sigSvc.Sign(s.secret, string(dataBytes))

	payload := WebhookPayload{
		EventType: eventType,
		Data:      data,
		Signature: signature,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	now := time.Now().UTC()
	delivery := &domain.WebhookDelivery{
		ID:        uuid.New(),
		OrderID:   order.ID,
		EventType: eventType,
		URL:       s.url,
		Payload:   string(payloadBytes),
		Status:    domain.WebhookStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.deliveries != nil {
		if err := s.deliveries.Create(context.WithoutCancel(ctx), delivery); err != nil {
			s.log.Warn().Err(err).Str("order_id", order.ID).Msg("webhook: failed to record delivery")
		}
	}

	go s.deliverWithRetries(payloadBytes, signature, delivery)

	return nil
}

// deliverWithRetries posts the payload until a 2xx response or the retry
// schedule is exhausted.
func (s *WebhookServiceImpl) deliverWithRetries(payload []byte, signature string, delivery *domain.WebhookDelivery) {
	log := s.log.With().Str("order_id", delivery.OrderID).Str("event", delivery.EventType).Logger()

	for attempt := 0; attempt <= len(s.retryIntervals); attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryIntervals[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			log.Error().Err(err).Msg("webhook: failed to create request")
			s.record(delivery, attempt, 0, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(SignatureHeader, signature)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("webhook: delivery failed")
			s.record(delivery, attempt, 0, err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Info().Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: delivered")
			s.record(delivery, attempt, resp.StatusCode, nil)
			return
		}

		log.Warn().Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("webhook: non-2xx response, retrying")
		s.record(delivery, attempt, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	log.Error().Msg("webhook: all retry attempts exhausted")
}

// record stores the outcome of attempt (zero-based). A nil err marks the
// delivery as delivered; an error schedules the next retry or fails it.
func (s *WebhookServiceImpl) record(delivery *domain.WebhookDelivery, attempt, httpStatus int, err error) {
	if s.deliveries == nil {
		return
	}

	delivery.Attempt = attempt + 1
	delivery.HTTPStatus = nil
	if httpStatus != 0 {
		delivery.HTTPStatus = &httpStatus
	}
	delivery.NextRetryAt = nil
	delivery.LastError = nil

	switch {
	case err == nil:
		delivery.Status = domain.WebhookStatusDelivered
	case attempt < len(s.retryIntervals):
		msg := err.Error()
		next := time.Now().UTC().Add(s.retryIntervals[attempt])
		delivery.Status = domain.WebhookStatusPending
		delivery.LastError = &msg
		delivery.NextRetryAt = &next
	default:
		msg := err.Error()
		delivery.Status = domain.WebhookStatusFailed
		delivery.LastError = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deliveries.Update(ctx, delivery); err != nil {
		s.log.Warn().Err(err).Str("delivery_id", delivery.ID.String()).Msg("webhook: failed to record attempt")
	}
}
