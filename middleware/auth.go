// Package middleware holds the gin middleware chain: request tagging and
// bearer-key authentication.
package middleware

import (
	"net/http"
	"strings"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"github.com/llmgateway/llmgateway/common/ctxkey"
	"github.com/llmgateway/llmgateway/common/helper"
	"github.com/llmgateway/llmgateway/model"
	relaymodel "github.com/llmgateway/llmgateway/relay/model"
)

// keyCache shortcuts the DB lookup for hot API keys. Entries expire quickly
// so disabling a key takes effect within a minute.
var keyCache = gocache.New(time.Minute, 5*time.Minute)

// TokenAuth authenticates the caller's bearer key and stashes the request's
// identity and accounting mode on the context.
func TokenAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abortUnauthorized(c, "missing api key")
			return
		}
		key, err := lookupKey(token)
		if err != nil {
			gmw.GetLogger(c).Warn("api key rejected",
				zap.String("key", helper.MaskAPIKey(token)), zap.Error(err))
			abortUnauthorized(c, "invalid api key")
			return
		}
		if key.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": relaymodel.Error{
				Message: "api key is disabled",
				Type:    relaymodel.ErrorTypeAuthentication,
				Code:    "key_disabled",
			}})
			return
		}

		c.Set(ctxkey.ApiKeyId, key.ID)
		c.Set(ctxkey.OrganizationId, key.OrganizationID)
		c.Set(ctxkey.ProjectId, key.ProjectID)
		mode := key.Mode
		if mode == "" {
			mode = model.ModeHybrid
		}
		c.Set(ctxkey.Mode, mode)
		if src := c.GetHeader("X-Source"); src != "" {
			c.Set(ctxkey.Source, src)
		}
		if strings.EqualFold(c.GetHeader("X-No-Fallback"), "true") {
			c.Set(ctxkey.NoFallback, true)
		}
		c.Next()
	}
}

// RequestID tags every request and echoes the id back to the caller.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = helper.GenerateRequestID()
		}
		c.Set(ctxkey.RequestId, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		// Anthropic-style clients send the key in X-Api-Key.
		auth = c.GetHeader("X-Api-Key")
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func lookupKey(token string) (*model.ApiKey, error) {
	if cached, ok := keyCache.Get(token); ok {
		return cached.(*model.ApiKey), nil
	}
	key, err := model.GetApiKeyByToken(token)
	if err != nil {
		return nil, err
	}
	keyCache.SetDefault(token, key)
	return key, nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": relaymodel.Error{
		Message: message,
		Type:    relaymodel.ErrorTypeAuthentication,
		Code:    "unauthorized",
	}})
}
