package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

const ContextSubjectKey = "auth.subject"

var ErrMissingCredential = errors.New("missing credential")

// Resolver turns a raw credential into the authenticated subject.
type Resolver[T any] func(ctx context.Context, credential string) (T, error)

// ErrorHandler writes the rejection response. It must abort the context.
type ErrorHandler func(c *gin.Context, err error)

// Middleware authenticates each request with extract and resolve and stores
// the subject under ContextSubjectKey. A missing credential is reported to
// onError as ErrMissingCredential without calling resolve.
func Middleware[T any](extract Extractor, resolve Resolver[T], onError ErrorHandler) gin.HandlerFunc {
	if onError == nil {
		onError = DefaultErrorHandler
	}
	return func(c *gin.Context) {
		credential := extract(c)
		if credential == "" {
			onError(c, ErrMissingCredential)
			return
		}

		subject, err := resolve(c.Request.Context(), credential)
		if err != nil {
			onError(c, err)
			return
		}

		c.Set(ContextSubjectKey, subject)
		c.Next()
	}
}

// Subject returns the value stored by Middleware.
func Subject[T any](c *gin.Context) (T, bool) {
	var zero T
	v, ok := c.Get(ContextSubjectKey)
	if !ok {
		return zero, false
	}
	subject, ok := v.(T)
	return subject, ok
}

func DefaultErrorHandler(c *gin.Context, err error) {
	message := "invalid credential"
	if errors.Is(err, ErrMissingCredential) {
		message = "missing credential"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": message})
}
