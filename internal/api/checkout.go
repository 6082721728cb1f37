package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

// placeGuestOrder handles guest checkout
func (h *Handler) placeGuestOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.orders.PlaceGuestOrder(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Order placed", resp)
}

// placeOrder handles checkout for a signed-in customer
func (h *Handler) placeOrder(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")

	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.orders.PlaceOrder(c.Request.Context(), customerID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Order placed", resp)
}

// getOrder returns one of the customer's orders
func (h *Handler) getOrder(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")
	orderID, ok := paramID(c, "orderId")
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid order ID")
		return
	}

	details, err := h.orders.GetOrder(c.Request.Context(), customerID, orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", details)
}
