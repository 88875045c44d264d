package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// WithResponseMeta prepares a per-request metadata map that handlers fill
// and pass to the response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Set(startedAtKey, time.Now())
		c.Next()
	}
}

const startedAtKey = "response_started_at"

// SetCacheHit records whether the payload was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	AddMeta(c, cacheHitKey, hit)
}

// AddMeta stores one metadata entry for the current response.
func AddMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	meta, ok := c.Get(responseMetaKey)
	typed, _ := meta.(map[string]interface{})
	if !ok || typed == nil {
		typed = map[string]interface{}{}
		c.Set(responseMetaKey, typed)
	}
	typed[key] = value
}

// ExtractMeta returns the metadata collected so far, stamped with the
// elapsed processing time. It returns nil when nothing was recorded.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, _ := c.Get(responseMetaKey)
	typed, _ := meta.(map[string]interface{})
	if len(typed) == 0 {
		return nil
	}
	if started, ok := c.Get(startedAtKey); ok {
		if at, ok := started.(time.Time); ok {
			typed["processing_time_ms"] = time.Since(at).Milliseconds()
		}
	}
	return typed
}
