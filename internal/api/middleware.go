package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const customerIDKey = "customer_id"

// authenticate requires a valid bearer token and stores its customer id in the context
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			respondError(c, http.StatusUnauthorized, "Missing token")
			return
		}

		customerID, err := h.tokens.Parse(token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(customerIDKey, customerID)
		c.Next()
	}
}

// requireCustomer rejects requests whose :customerId is not the authenticated customer
func (h *Handler) requireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, ok := paramID(c, "customerId")
		if !ok {
			respondError(c, http.StatusBadRequest, "Invalid customer ID")
			return
		}
		if c.GetInt64(customerIDKey) != customerID {
			respondError(c, http.StatusForbidden, "Access denied")
			return
		}
		c.Next()
	}
}
