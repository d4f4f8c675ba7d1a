package middleware

import (
	"net/http"

	"github.com/bazaar-io-st/openbazaar-desktop/pkg/apperror"
	"github.com/bazaar-io-st/openbazaar-desktop/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize limits the request body to maxBytes. Requests that declare a
// larger Content-Length are rejected up front with 413; for the rest the
// body reader fails once the limit is crossed.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, apperror.New("VAL_002", "Request body too large", http.StatusRequestEntityTooLarge))
			c.Abort()
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
