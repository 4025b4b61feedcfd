package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookclub/bookclub/internal/ratelimit"
)

func sign(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, _ := GetUserEmail(r.Context())
		_, _ = w.Write([]byte(email))
	})
}

func TestJWTAuth(t *testing.T) {
	const secret = "s3cret"
	valid := sign(t, secret, Claims{
		Email:            "Alice@Example.com",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	expired := sign(t, secret, Claims{
		Email:            "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	forged := sign(t, "other", Claims{
		Email:            "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "alice@example.com"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong key", "Bearer " + forged, http.StatusUnauthorized, ""},
	}

	h := JWTAuth(secret)(echoUser())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestHeaderAuth(t *testing.T) {
	h := HeaderAuth(echoUser())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Email", " Bob@Example.com ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "bob@example.com", rec.Body.String())

	rec = httptest.NewRecorder()
	RequireUser(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit_OnlyWrites(t *testing.T) {
	krl := ratelimit.New(0.001, 1, 0)
	defer krl.Stop()
	h := RequestLogger(zap.NewNop())(RateLimit(krl)(echoUser()))

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
