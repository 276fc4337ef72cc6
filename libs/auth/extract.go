package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	AuthorizationHeader = "Authorization"
	APIKeyHeader        = "X-API-Key"
)

// Extractor pulls a raw credential out of a request. It returns "" when none
// is present.
type Extractor func(c *gin.Context) string

func ExtractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func BearerToken(c *gin.Context) string {
	return ExtractBearer(c.GetHeader(AuthorizationHeader))
}

func APIKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(APIKeyHeader))
}
