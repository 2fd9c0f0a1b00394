package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"blindshake_server/apperrors"
)

type contextKey string

const userIDKey contextKey = "userId"

// OperatorKeyHeader carries the shared secret for admin routes.
const OperatorKeyHeader = "X-Operator-Key"

// Claims accepts the user id either as "userId" or as the standard subject.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// UserIDFromContext returns the authenticated user id, or "" when the
// request carried no valid token.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// WithUserID returns ctx carrying userID as the authenticated identity.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Authenticator validates HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	logger *slog.Logger
}

func NewAuthenticator(secret string, logger *slog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), logger: logger}
}

// ParseToken returns the user id a token was issued for.
func (a *Authenticator) ParseToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", errors.Wrap(err, "token validation failed")
	}
	if !token.Valid || claims.subject() == "" {
		return "", errors.New("token has no subject")
	}
	return claims.subject(), nil
}

// Authenticate resolves the bearer token into a user id on the request
// context. Requests without a valid token are rejected with 401.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeError(w, apperrors.ErrUnauthenticated)
			return
		}

		userID, err := a.ParseToken(parts[1])
		if err != nil {
			a.logger.Warn("rejected bearer token", "path", r.URL.Path, "error", err)
			writeError(w, apperrors.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// RequireOperator guards admin routes with a shared operator key. An
// empty configured key disables the routes entirely.
func RequireOperator(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(OperatorKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, apperrors.ErrNotOperator)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatus(err))
	json.NewEncoder(w).Encode(apperrors.ToBody(err))
}
