package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"device-dispatch/internal/config"
	"device-dispatch/internal/utils"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(utils.NewServiceLogger(logger, "test")))
	router.Use(CORSMiddleware(&config.SecurityConfig{AllowedOrigins: []string{"http://panel.local"}}))

	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(utils.RequestIDKey))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("relay board on fire")
	})
	return router
}

func TestRequestID(t *testing.T) {
	router := newRouter()

	tests := []struct {
		name   string
		header string
		same   bool
	}{
		{"generated", "", false},
		{"propagated", "abc-123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q, body %q", got, w.Body.String())
			}
			if tt.same && got != tt.header {
				t.Errorf("request id = %q, want %q", got, tt.header)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	router := newRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	router := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "http://panel.local")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
