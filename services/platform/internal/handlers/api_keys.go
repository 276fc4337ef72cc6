package handlers

import (
	"net/http"
	"time"

	"github.com/AfshinJalili/sentinel/libs/auth"
	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type generateKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type generateKeyResponse struct {
	KeyID     uuid.UUID  `json:"key_id"`
	RawKey    string     `json:"raw_key"`
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Message   string     `json:"message"`
}

// GenerateKey accepts the key name as a query parameter or in a JSON body.
// The query parameter wins when both are present.
func (h *Handler) GenerateKey(c *gin.Context) {
	tenant, ok := auth.Subject[storage.Tenant](c)
	if !ok {
		h.authError(c, auth.ErrMissingCredential)
		return
	}

	var req generateKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c)
			return
		}
	}
	if name, ok := c.GetQuery("name"); ok {
		req.Name = name
	}

	key, err := h.svc.GenerateKey(c.Request.Context(), tenant.ID, service.GenerateKeyInput{
		Name:      req.Name,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, generateKeyResponse{
		KeyID:     key.KeyID,
		RawKey:    key.RawKey,
		Name:      key.Name,
		Prefix:    key.Prefix,
		ExpiresAt: key.ExpiresAt,
		Message:   "store this API key now, it will not be shown again",
	})
}

func (h *Handler) ListKeys(c *gin.Context) {
	tenant, ok := auth.Subject[storage.Tenant](c)
	if !ok {
		h.authError(c, auth.ErrMissingCredential)
		return
	}

	keys, err := h.svc.ListKeys(c.Request.Context(), tenant.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *Handler) RevokeKey(c *gin.Context) {
	tenant, ok := auth.Subject[storage.Tenant](c)
	if !ok {
		h.authError(c, auth.ErrMissingCredential)
		return
	}

	keyID, err := uuid.Parse(c.Param("key_id"))
	if err != nil {
		h.writeError(c, service.ErrKeyNotFound)
		return
	}

	if err := h.svc.RevokeKey(c.Request.Context(), tenant.ID, keyID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
