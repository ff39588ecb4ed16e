// Package middleware holds the gin middleware shared by the API handlers.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	prommetrics "github.com/aimd54/datestreak/internal/metrics"
	"github.com/aimd54/datestreak/internal/models"
)

// Request headers.
const (
	HeaderUserID     = "X-User-ID"
	HeaderRegion     = "X-Region"
	HeaderDeviceID   = "X-Device-ID"
	HeaderClientDate = "X-Client-Date"
	HeaderRequestID  = "X-Request-ID"
)

const (
	sessionKey   = "session"
	requestIDKey = "request_id"
)

// RequestID tags every request with an id, reusing the caller's when sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Session builds the caller's session from the request headers. Today is
// the server's date in loc; a client date one day ahead is accepted for
// clients past midnight in an eastern timezone. Earlier client dates are
// ignored so a missed day can never be played as today.
func Session(loc *time.Location, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "missing " + HeaderUserID + " header",
				"timestamp": time.Now().UTC(),
			})
			return
		}

		today := models.Day(now().In(loc))
		if raw := c.GetHeader(HeaderClientDate); raw != "" {
			clientDate, err := time.Parse("2006-01-02", raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":     "invalid " + HeaderClientDate + " header, expected YYYY-MM-DD",
					"timestamp": time.Now().UTC(),
				})
				return
			}
			if models.DaysBetween(clientDate, today) == 1 {
				today = models.Day(clientDate)
			}
		}

		c.Set(sessionKey, models.Session{
			UserID:   userID,
			Region:   strings.ToUpper(strings.TrimSpace(c.GetHeader(HeaderRegion))),
			DeviceID: c.GetHeader(HeaderDeviceID),
			Today:    today,
		})
		c.Next()
	}
}

// GetSession returns the session set by Session.
func GetSession(c *gin.Context) models.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(models.Session); ok {
			return sess
		}
	}
	return models.Session{}
}

// visitor wraps a limiter with its last activity for periodic cleanup.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per user, falling back to the client IP for
// anonymous calls. Idle entries are dropped every minute.
func RateLimiter(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	store := make(map[string]*visitor)
	var mu sync.Mutex

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for key, v := range store {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(store, key)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderUserID)
		if key == "" {
			key = c.ClientIP()
		}

		mu.Lock()
		v, exists := store[key]
		if !exists {
			v = &visitor{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
			store[key] = v
		}
		v.lastSeen = time.Now()
		mu.Unlock()

		if !v.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "too many requests",
				"timestamp": time.Now().UTC(),
			})
			return
		}
		c.Next()
	}
}

// Metrics counts served requests by route template and status code.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prommetrics.RecordHTTPRequest(route, strconv.Itoa(c.Writer.Status()))
	}
}
