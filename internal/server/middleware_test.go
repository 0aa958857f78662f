package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seoforge-ai/seoforge/internal/auth"
	"github.com/seoforge-ai/seoforge/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withClaims(r *http.Request, role model.Role) *http.Request {
	claims := &auth.Claims{ProjectID: uuid.New(), Role: role}
	return r.WithContext(context.WithValue(r.Context(), contextKeyClaims, claims))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddlewarePropagatesClientID(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "client-supplied", seen)
}

func TestAuthMiddleware(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	token, _, err := mgr.IssueToken(uuid.New(), model.RoleEditor)
	require.NoError(t, err)

	var gotClaims *auth.Claims
	h := authMiddleware(mgr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
	}))

	tests := []struct {
		name       string
		path       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "/v1/playbooks", "Bearer " + token, http.StatusOK},
		{"missing header", "/v1/playbooks", "", http.StatusUnauthorized},
		{"not bearer", "/v1/playbooks", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "/v1/playbooks", "Bearer nope", http.StatusUnauthorized},
		{"health is public", "/health", "", http.StatusOK},
		{"token exchange is public", "/auth/token", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	require.NotNil(t, gotClaims)
	assert.Equal(t, model.RoleEditor, gotClaims.Role)
}

func TestRequireRole(t *testing.T) {
	h := requireRole(model.RoleEditor)(okHandler())

	t.Run("no claims", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("viewer is refused", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), model.RoleViewer))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		var body model.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, model.ErrCodeForbidden, body.Error.Code)
	})

	t.Run("editor passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), model.RoleEditor))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("admin passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), model.RoleAdmin))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

// stubLimiter scripts the next Allow outcome.
type stubLimiter struct {
	allow   bool
	err     error
	lastKey string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.lastKey = key
	return s.allow, s.err
}

func (s *stubLimiter) Close() error { return nil }

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		lim := &stubLimiter{allow: true}
		h := rateLimitMiddleware(lim, discardLogger())(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), model.RoleEditor))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(lim.lastKey, "project:"))
	})

	t.Run("denied", func(t *testing.T) {
		h := rateLimitMiddleware(&stubLimiter{allow: false}, discardLogger())(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), model.RoleEditor))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))

		var body model.APIError
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, model.ErrCodeRateLimited, body.Error.Code)
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		h := rateLimitMiddleware(&stubLimiter{err: errors.New("down")}, discardLogger())(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withClaims(httptest.NewRequest(http.MethodPost, "/", nil), model.RoleEditor))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unauthenticated request bypasses", func(t *testing.T) {
		h := rateLimitMiddleware(&stubLimiter{allow: false}, discardLogger())(okHandler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(discardLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeInternalError, body.Error.Code)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := securityHeadersMiddleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
}

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), contextKeyRequestID, "req-1"))

	writeError(rec, req, http.StatusNotFound, model.ErrCodeNotFound, "gone")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body model.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.ErrCodeNotFound, body.Error.Code)
	assert.Equal(t, "gone", body.Error.Message)
	assert.Equal(t, "req-1", body.Meta.RequestID)
	assert.False(t, body.Meta.Timestamp.IsZero())
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sample_size": 3, "bogus": true}`))
	var target model.PreviewRequest
	err := decodeJSON(httptest.NewRecorder(), req, &target, 1<<20)
	assert.Error(t, err)
}

func TestDecodeJSONBodyCap(t *testing.T) {
	big := `{"rules": {"prefix": "` + strings.Repeat("x", 100) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var target model.PreviewRequest
	err := decodeJSON(httptest.NewRecorder(), req, &target, 16)

	var mbe *http.MaxBytesError
	assert.ErrorAs(t, err, &mbe)
}
