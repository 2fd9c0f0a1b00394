package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blindshake_server/apperrors"
)

const testSecret = "test-secret"

func sign(t *testing.T, claims jwt.Claims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, UserIDFromContext(r.Context()))
	})
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := auth.Authenticate(echoUser())
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantUser string
	}{
		{
			name:     "userId claim",
			header:   "Bearer " + sign(t, &Claims{UserID: "alice", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}, testSecret),
			wantCode: http.StatusOK,
			wantUser: "alice",
		},
		{
			name:     "sub claim",
			header:   "Bearer " + sign(t, jwt.RegisteredClaims{Subject: "bob", ExpiresAt: future}, testSecret),
			wantCode: http.StatusOK,
			wantUser: "bob",
		},
		{
			name:     "missing header",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong scheme",
			header:   "Basic abc",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong secret",
			header:   "Bearer " + sign(t, &Claims{UserID: "alice"}, "other"),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "expired",
			header:   "Bearer " + sign(t, &Claims{UserID: "alice", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}}, testSecret),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "no subject",
			header:   "Bearer " + sign(t, jwt.RegisteredClaims{ExpiresAt: future}, testSecret),
			wantCode: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/shake/start", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantUser, rec.Body.String())
				return
			}
			var body apperrors.Body
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apperrors.CodeUnauthenticated, body.Error.Code)
		})
	}
}

func TestRequireOperator(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	run := func(key, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/sweeps/pool", nil)
		if header != "" {
			req.Header.Set(OperatorKeyHeader, header)
		}
		rec := httptest.NewRecorder()
		RequireOperator(key)(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, run("k1", "k1"))
	assert.Equal(t, http.StatusForbidden, run("k1", "k2"))
	assert.Equal(t, http.StatusForbidden, run("k1", ""))
	assert.Equal(t, http.StatusForbidden, run("", ""))
}
