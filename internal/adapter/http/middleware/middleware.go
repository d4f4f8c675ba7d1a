package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/apperror"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Header names for feed HMAC authentication
	HeaderAccessKey = "X-OB-Access-Key"
	HeaderSignature = "X-OB-Signature"
	HeaderTimestamp = "X-OB-Timestamp"
	HeaderNonce     = "X-OB-Nonce"

	HeaderRequestID = "X-Request-ID"

	// Max timestamp drift allowed (60 seconds)
	maxTimestampDrift = 60 * time.Second

	// Nonce TTL (120 seconds)
	nonceTTL = 120 * time.Second

	// Context keys
	CtxProfileID  = "profile_id"
	CtxFeedClient = "feed_client"
)

// FeedAuth verifies HMAC-SHA256 signatures on wallet feed requests.
// Pipeline: Check access key -> Check timestamp -> Check nonce -> Verify signature.
func FeedAuth(
	accessKey string,
	secretKey string,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		gotKey := c.GetHeader(HeaderAccessKey)
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)

		if gotKey == "" || signature == "" || timestampStr == "" || nonce == "" {
			response.Error(c, apperror.ErrInvalidAccessKey())
			c.Abort()
			return
		}
		if accessKey == "" || subtle.ConstantTimeCompare([]byte(gotKey), []byte(accessKey)) != 1 {
			response.Error(c, apperror.ErrInvalidAccessKey())
			c.Abort()
			return
		}

		// Step 1: Timestamp check
		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			response.Error(c, apperror.ErrTimestampExpired())
			c.Abort()
			return
		}
		now := time.Now().Unix()
		if math.Abs(float64(now-timestamp)) > maxTimestampDrift.Seconds() {
			response.Error(c, apperror.ErrTimestampExpired())
			c.Abort()
			return
		}

		// Step 2: Nonce check
		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), gotKey, nonce, nonceTTL)
		if err != nil {
			log.Warn().Err(err).Msg("nonce store error, allowing request")
		} else if !isNew {
			response.Error(c, apperror.ErrNonceUsed())
			c.Abort()
			return
		}

		// Step 3: Signature verification
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		canonical := sigSvc.BuildCanonicalString(
			c.Request.Method,
			c.Request.URL.Path,
			timestamp,
			nonce,
			string(bodyBytes),
		)

		if !sigSvc.Verify(secretKey, canonical, signature) {
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		c.Set(CtxFeedClient, gotKey)
		c.Next()
	}
}

// JWTAuth validates profile JWT tokens and stores the profile ID in the context.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxProfileID, claims.ProfileID)
		c.Next()
	}
}

// ProfileID returns the authenticated profile ID, or "" outside JWT routes.
func ProfileID(c *gin.Context) string {
	return c.GetString(CtxProfileID)
}

// RequestID propagates X-Request-ID, generating one when the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("request_id", c.GetString(response.CtxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
