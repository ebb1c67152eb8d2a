package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey   = "response_meta"
	cacheHitKey       = "cache_hit"
	warningsKey       = "warnings"
	processingTimeKey = "processing_time_ms"
)

// WithResponseMeta seeds the per-request metadata map that handlers enrich
// (cache hits on admission reads, warnings on transitions) and the response
// envelope echoes back.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()

		meta := ensureMeta(c)
		// A handler may have timed its own dominant step; the middleware
		// only fills the gap.
		if _, ok := meta[processingTimeKey]; !ok {
			meta[processingTimeKey] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether an admission read was served from Redis.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// SetWarnings attaches partial-success warnings to the response metadata.
// A transition that committed but failed a post-commit step (notification,
// event publish) reports the failures here instead of erroring.
func SetWarnings(c *gin.Context, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	ensureMeta(c)[warningsKey] = warnings
}

// ExtractMeta returns the metadata map stored on the context, or nil when
// the middleware did not run for this request.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta, _ := metaFrom(c)
	return meta
}

func metaFrom(c *gin.Context) (map[string]interface{}, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c.Get(responseMetaKey)
	if !exists {
		return nil, false
	}
	typed, ok := value.(map[string]interface{})
	return typed, ok
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta, ok := metaFrom(c); ok {
		return meta
	}
	meta := map[string]interface{}{}
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
