package broker

import (
	"time"

	"github.com/didip/tollbooth/v7"
	toll_limiter "github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
)

// NewIPRateLimiter limits requests per remote address: maxReqs per second,
// burst instantaneous, with limiter state expiring after ttl.
func NewIPRateLimiter(maxReqs float64, burst int, ttl time.Duration) gin.HandlerFunc {
	lim := tollbooth.NewLimiter(maxReqs, &toll_limiter.ExpirableOptions{
		DefaultExpirationTTL: ttl,
	})
	lim.SetBurst(burst)
	lim.SetIPLookups([]string{"RemoteAddr"})

	return func(c *gin.Context) {
		if httpErr := tollbooth.LimitByRequest(lim, c.Writer, c.Request); httpErr != nil {
			c.AbortWithStatusJSON(httpErr.StatusCode, gin.H{
				"error":       "too many connection attempts",
				"retry_after": c.Writer.Header().Get("Retry-After"),
			})
			return
		}
		c.Next()
	}
}
