package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		*seen = Value(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddlewareKeepsInboundID(t *testing.T) {
	var seen string
	r := newRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderKey))
}

func TestMiddlewareGeneratesID(t *testing.T) {
	var seen string
	r := newRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderKey, strings.Repeat("x", 200))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(HeaderKey))
}
