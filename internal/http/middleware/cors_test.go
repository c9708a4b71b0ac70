package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORSPreflightForConfiguredOrigin(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		configured string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{name: "configured origin", configured: "https://ielts.example.com/", origin: "https://ielts.example.com", wantStatus: http.StatusOK, wantAllow: "https://ielts.example.com"},
		{name: "foreign origin", configured: "https://ielts.example.com", origin: "https://evil.example.com", wantStatus: http.StatusForbidden},
		{name: "wildcard", configured: "*", origin: "http://localhost:5173", wantStatus: http.StatusOK, wantAllow: "*"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(CORS(tc.configured))
			r.POST("/api/chat", func(c *gin.Context) { c.Status(http.StatusNoContent) })

			req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got=%d want=%d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("allow-origin: got=%q want=%q", got, tc.wantAllow)
			}
		})
	}
}
