package handlers

import (
	"net/http"

	"github.com/AfshinJalili/sentinel/libs/auth"
	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerResponse struct {
	TenantID uuid.UUID `json:"tenant_id"`
	APIKey   string    `json:"api_key"`
	Message  string    `json:"message"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, registerResponse{
		TenantID: res.TenantID,
		APIKey:   res.APIKey,
		Message:  "store this API key now, it will not be shown again",
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
	})
}

func (h *Handler) Me(c *gin.Context) {
	tenant, ok := auth.Subject[storage.Tenant](c)
	if !ok {
		h.authError(c, auth.ErrMissingCredential)
		return
	}
	c.JSON(http.StatusOK, service.ProfileOf(tenant))
}

func sessionTenant(c *gin.Context) (uuid.UUID, bool) {
	tenant, ok := auth.Subject[storage.Tenant](c)
	return tenant.ID, ok
}
