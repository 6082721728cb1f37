package api

import (
	"net/http"

	"storefront-service/internal/models"
	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type addressRequest struct {
	AddressType models.AddressType `json:"address_type_id" binding:"required"`
	service.AddressInput
}

type defaultAddressRequest struct {
	AddressType models.AddressType `json:"address_type_id" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	customer, err := h.accounts.Register(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Registration successful, please verify your email", customer)
}

func (h *Handler) verifyEmail(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Token is required")
		return
	}

	customer, err := h.accounts.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Email verified", customer)
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.accounts.Login(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", resp)
}

func (h *Handler) federatedLogin(c *gin.Context) {
	var req service.FederatedLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.accounts.FederatedLogin(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", resp)
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "If the email is registered, a reset link has been sent", nil)
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Token and password are required")
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Password has been reset", nil)
}

func (h *Handler) changePassword(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Current and new password are required")
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), customerID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Password changed", nil)
}

func (h *Handler) getCustomer(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")

	customer, err := h.customers.GetCustomer(c.Request.Context(), customerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", customer)
}

func (h *Handler) listAddresses(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")

	addresses, err := h.addresses.ListAddresses(c.Request.Context(), customerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "", addresses)
}

func (h *Handler) addAddress(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")

	var req addressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	address, err := h.addresses.AddAddress(c.Request.Context(), customerID, req.AddressType, &req.AddressInput)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, "Address added", address)
}

func (h *Handler) deleteAddress(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")
	addressID, ok := paramID(c, "addressId")
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid address ID")
		return
	}

	if err := h.addresses.DeleteAddress(c.Request.Context(), customerID, addressID); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Address deleted", nil)
}

func (h *Handler) setDefaultAddress(c *gin.Context) {
	customerID, _ := paramID(c, "customerId")
	addressID, ok := paramID(c, "addressId")
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid address ID")
		return
	}

	var req defaultAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Address type is required")
		return
	}

	if err := h.addresses.SetAddressAsDefault(c.Request.Context(), customerID, addressID, req.AddressType); err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, "Default address updated", nil)
}
