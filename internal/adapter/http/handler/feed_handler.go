package handler

import (
	"errors"
	"fmt"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/http/dto"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/apperror"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FeedHandler accepts order and transaction snapshots from the wallet.
type FeedHandler struct {
	orderSvc ports.OrderService
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(orderSvc ports.OrderService) *FeedHandler {
	return &FeedHandler{orderSvc: orderSvc}
}

// SyncOrder handles PUT /api/v1/feed/orders/:id.
func (h *FeedHandler) SyncOrder(c *gin.Context) {
	var req dto.SyncOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	syncReq := ports.SyncOrderRequest{
		OrderID:     c.Param("id"),
		BuyerID:     req.BuyerID,
		VendorID:    req.VendorID,
		ModeratorID: req.ModeratorID,
		State:       req.State,
		Contract:    req.Contract,
	}
	if r := req.RefundAddressTransaction; r != nil {
		syncReq.RefundTransaction = &ports.TransactionInput{
			TxID:      r.TxID,
			Value:     r.Value,
			Height:    r.Height,
			Timestamp: r.Timestamp,
		}
	}

	order, err := h.orderSvc.SyncOrder(c.Request.Context(), syncReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewOrderResponse(order, ""))
}

// IngestTransactions handles PUT /api/v1/feed/orders/:id/transactions. The
// body replaces the order's payment address transactions.
func (h *FeedHandler) IngestTransactions(c *gin.Context) {
	var req dto.IngestTransactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, transactionBindError(&req, err))
		return
	}

	inputs := make([]ports.TransactionInput, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		inputs = append(inputs, ports.TransactionInput{
			TxID:      tx.TxID,
			Value:     tx.Value,
			Height:    tx.Height,
			Timestamp: tx.Timestamp,
		})
	}

	funding, err := h.orderSvc.IngestTransactions(c.Request.Context(), ports.IngestTransactionsRequest{
		OrderID:      c.Param("id"),
		Transactions: inputs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("X-Funding-Fingerprint", funding.Fingerprint)
	response.OK(c, dto.NewFundingResponse(funding))
}

// transactionBindError reports a field failure inside the transaction list as
// TXN_001 naming the offending txid. Anything else is a plain validation error.
func transactionBindError(req *dto.IngestTransactionsRequest, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation(err.Error())
	}
	for _, fe := range verrs {
		var idx int
		if _, scanErr := fmt.Sscanf(fe.StructNamespace(), "IngestTransactionsRequest.Transactions[%d]", &idx); scanErr != nil {
			continue
		}
		txID := ""
		if idx >= 0 && idx < len(req.Transactions) {
			txID = req.Transactions[idx].TxID
		}
		return apperror.ErrInvalidTransaction(txID, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return apperror.Validation(err.Error())
}
