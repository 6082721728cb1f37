package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Message: message})
}

// respondServiceError maps a service failure to its status; internal causes are never written
func respondServiceError(c *gin.Context, err error) {
	svcErr := service.AsError(err)
	respondError(c, statusFor(svcErr), svcErr.Message)
}

func statusFor(err *service.Error) int {
	switch err.Kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindBusiness:
		switch err.Code {
		case service.CodeNotFound:
			return http.StatusNotFound
		case service.CodeInsufficientStock, service.CodeDuplicateEmail, service.CodeCheckoutInProgress:
			return http.StatusConflict
		case service.CodeInvalidCredentials:
			return http.StatusUnauthorized
		case service.CodeUnverified, service.CodeDeactivated:
			return http.StatusForbidden
		case service.CodeInvalidToken:
			return http.StatusBadRequest
		default:
			return http.StatusUnprocessableEntity
		}
	default:
		if err.Code == service.CodeDeliveryFailed {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
