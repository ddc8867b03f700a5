package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLocalLimiterExhausts(t *testing.T) {
	l := NewRateLimiter(3, nil)
	for i := 0; i < 3; i++ {
		if !l.allowLocal("10.0.0.1") {
			t.Fatalf("request %d denied under limit", i+1)
		}
	}
	if l.allowLocal("10.0.0.1") {
		t.Fatal("request over limit allowed")
	}
	// Other clients have their own budget.
	if !l.allowLocal("10.0.0.2") {
		t.Fatal("separate client denied")
	}
}

func TestGinMiddlewareRejectsOverLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(2, nil).GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	var last int
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", last)
	}
}

func TestDefaultLimit(t *testing.T) {
	l := NewRateLimiter(0, nil)
	if l.perMinute != 120 {
		t.Fatalf("default = %d, want 120", l.perMinute)
	}
}
