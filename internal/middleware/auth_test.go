package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/workorder-safety/internal/auth"
	"github.com/ukydev/workorder-safety/internal/models"
)

func newService(t *testing.T) *auth.Service {
	t.Helper()
	s, err := auth.NewService("test-secret", time.Hour)
	require.NoError(t, err)
	return s
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService := newService(t)
	middleware := NewAuthMiddleware(authService)

	t.Run("valid token", func(t *testing.T) {
		actor := models.Actor{UserID: "u-1", UserName: "mora", Department: "Utilities", Role: models.RoleTechnician}
		token, _ := authService.GenerateToken(actor)

		req := httptest.NewRequest("GET", "/api/work-orders/wo-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			got, ok := GetActorFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, actor, got)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/work-orders/wo-1", nil)
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Authorization header required")
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/work-orders/wo-1", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid token")
	})

	t.Run("health skips auth", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true })
		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
	})
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	middleware := NewAuthMiddleware(newService(t))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		role   models.Role
		action string
		want   int
	}{
		{"technician completes", models.RoleTechnician, models.ActionCompleteWorkOrder, http.StatusNoContent},
		{"technician cannot delete attachments", models.RoleTechnician, models.ActionDeleteAttachment, http.StatusForbidden},
		{"viewer reads", models.RoleViewer, models.ActionViewWorkOrder, http.StatusNoContent},
		{"viewer cannot edit safety", models.RoleViewer, models.ActionManageSafety, http.StatusForbidden},
		{"supervisor deletes", models.RoleSupervisor, models.ActionDeleteAttachment, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/work-orders/wo-1/complete", nil)
			req = req.WithContext(WithClaims(req.Context(), &models.Claims{UserID: "u-1", Role: tt.role}))
			w := httptest.NewRecorder()

			middleware.RequirePermission(tt.action)(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	t.Run("no user context", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/work-orders/wo-1/complete", nil)
		w := httptest.NewRecorder()
		middleware.RequirePermission(models.ActionViewWorkOrder)(ok).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	handler := limiter.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	call := func(ip string, claims *models.Claims) int {
		req := httptest.NewRequest("GET", "/api/materials", nil)
		req.RemoteAddr = ip + ":5123"
		if claims != nil {
			req = req.WithContext(WithClaims(req.Context(), claims))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1", nil))
	assert.Equal(t, http.StatusOK, call("10.0.0.1", nil))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1", nil))
	assert.Equal(t, http.StatusOK, call("10.0.0.2", nil))
	assert.Equal(t, http.StatusOK, call("10.0.0.1", &models.Claims{UserID: "u-1"}), "users are limited separately from their IP")

	now = now.Add(61 * time.Second)
	assert.Equal(t, http.StatusOK, call("10.0.0.1", nil))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.9:4000"
	assert.Equal(t, "192.168.1.9", getClientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.4")
	assert.Equal(t, "172.16.0.4", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}
