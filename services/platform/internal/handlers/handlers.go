package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AfshinJalili/sentinel/libs/auth"
	"github.com/AfshinJalili/sentinel/services/platform/internal/rate"
	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/AfshinJalili/sentinel/services/platform/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Service is the credential core the HTTP surface drives.
type Service interface {
	Register(ctx context.Context, in service.RegisterInput) (service.RegisterResult, error)
	Login(ctx context.Context, email, password string) (service.LoginResult, error)
	ResolveSession(ctx context.Context, token string) (storage.Tenant, error)
	GenerateKey(ctx context.Context, tenantID uuid.UUID, in service.GenerateKeyInput) (service.GeneratedKey, error)
	ListKeys(ctx context.Context, tenantID uuid.UUID) ([]service.KeySummary, error)
	RevokeKey(ctx context.Context, tenantID, keyID uuid.UUID) error
	VerifyKey(ctx context.Context, raw string) (service.VerifiedKey, error)
}

type UsageRecorder interface {
	Record(entry storage.UsageLog) bool
}

type errorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

type Handler struct {
	svc     Service
	limiter rate.Limiter
	usage   UsageRecorder
	logger  *slog.Logger
	now     func() time.Time
}

// New builds the HTTP handlers. limiter and usage may be nil.
func New(svc Service, limiter rate.Limiter, usage UsageRecorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:     svc,
		limiter: limiter,
		usage:   usage,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	tenants := r.Group("/tenants")
	tenants.POST("/register", rate.Middleware(h.limiter, "register", h.now, h.logger), h.Register)
	tenants.POST("/login", rate.Middleware(h.limiter, "login", h.now, h.logger), h.Login)

	session := tenants.Group("")
	session.Use(auth.Middleware[storage.Tenant](auth.BearerToken, h.svc.ResolveSession, h.authError))
	session.Use(h.recordUsage(sessionTenant))
	session.GET("/me", h.Me)
	session.POST("/api-keys", h.GenerateKey)
	session.GET("/api-keys", h.ListKeys)
	session.DELETE("/api-keys/:key_id", h.RevokeKey)

	internal := r.Group("/internal")
	internal.Use(auth.Middleware[service.VerifiedKey](auth.APIKey, h.svc.VerifyKey, h.authError))
	internal.Use(h.recordUsage(keyTenant))
	internal.GET("/verify-key", h.VerifyKey)
}

// authError never distinguishes an unknown credential from a wrong one.
func (h *Handler) authError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential), errors.Is(err, service.ErrMissingCredential):
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "missing credential"})
	case errors.Is(err, service.ErrAccountSuspended):
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Code: "ACCOUNT_SUSPENDED", Message: "account is not active"})
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrInvalidCredential):
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid credential"})
	default:
		h.logger.Error("authentication failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: verrs.Error(), Fields: verrs})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHORIZED", Message: "invalid email or password"})
	case errors.Is(err, service.ErrAccountSuspended):
		c.JSON(http.StatusForbidden, errorResponse{Code: "ACCOUNT_SUSPENDED", Message: "account is not active"})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusConflict, errorResponse{Code: "EMAIL_TAKEN", Message: "email already registered"})
	case errors.Is(err, service.ErrQuotaExceeded):
		c.JSON(http.StatusConflict, errorResponse{Code: "QUOTA_EXCEEDED", Message: "active api key limit reached"})
	case errors.Is(err, service.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "api key not found"})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
	}
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, errorResponse{Code: "INVALID_REQUEST", Message: "invalid payload"})
}
