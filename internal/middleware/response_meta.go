package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	metaKey      = "response_meta"
	metaStartKey = "response_meta_start"
	cacheHitKey  = "cache_hit"
)

// WithResponseMeta gives handlers a per-request metadata map for the response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Set(metaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetMeta stores one metadata entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	meta, ok := metaFor(c)
	if !ok {
		meta = map[string]interface{}{}
		c.Set(metaKey, meta)
	}
	meta[key] = value
}

// SetCacheHit records whether the payload came from the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// ExtractMeta returns the collected metadata with the elapsed processing time, or nil when
// nothing was recorded.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, ok := metaFor(c)
	if !ok || len(meta) == 0 {
		return nil
	}
	if start, exists := c.Get(metaStartKey); exists {
		if ts, ok := start.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(ts).Milliseconds()
		}
	}
	return meta
}

func metaFor(c *gin.Context) (map[string]interface{}, bool) {
	raw, exists := c.Get(metaKey)
	if !exists {
		return nil, false
	}
	meta, ok := raw.(map[string]interface{})
	return meta, ok
}
