package handler

import (
	"github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/http/dto"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/adapter/http/middleware"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/apperror"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/response"

	"github.com/gin-gonic/gin"
)

// OrderHandler serves orders to their participants.
type OrderHandler struct {
	orderSvc ports.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc ports.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// ListOrders handles GET /api/v1/orders.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	var q dto.OrderListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.OrderListParams{
		ProfileID: middleware.ProfileID(c),
		Type:      domain.OrderType(q.Type),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
	if q.State != "" {
		state := domain.OrderState(q.State)
		params.State = &state
	}
	params.Normalize()

	orders, total, err := h.orderSvc.ListOrders(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, dto.NewOrderResponse(&orders[i], params.ProfileID))
	}
	response.Page(c, items, total, params.Page, params.PageSize)
}

// GetOrder handles GET /api/v1/orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	profileID := middleware.ProfileID(c)
	order, err := h.participantOrder(c, profileID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewOrderResponse(order, profileID))
}

// GetFunding handles GET /api/v1/orders/:id/funding.
func (h *OrderHandler) GetFunding(c *gin.Context) {
	order, err := h.participantOrder(c, middleware.ProfileID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	funding, err := h.orderSvc.GetFunding(c.Request.Context(), order)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewFundingResponse(funding))
}

// CancelOrder handles POST /api/v1/orders/:id/cancel.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	profileID := middleware.ProfileID(c)
	order, err := h.orderSvc.CancelOrder(c.Request.Context(), c.Param("id"), profileID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewOrderResponse(order, profileID))
}

// OpenDispute handles POST /api/v1/orders/:id/dispute.
func (h *OrderHandler) OpenDispute(c *gin.Context) {
	var req dto.DisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	profileID := middleware.ProfileID(c)
	order, err := h.orderSvc.OpenDispute(c.Request.Context(), ports.DisputeRequest{
		OrderID:   c.Param("id"),
		ProfileID: profileID,
		Claim:     req.Claim,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewOrderResponse(order, profileID))
}

// participantOrder loads the order named in the path. Orders the caller does
// not take part in are reported as missing.
func (h *OrderHandler) participantOrder(c *gin.Context, profileID string) (*domain.Order, error) {
	order, err := h.orderSvc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(profileID) {
		return nil, apperror.ErrNotFound("Order")
	}
	return order, nil
}
