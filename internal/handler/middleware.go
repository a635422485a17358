package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const accountIDKey contextKey = "accountID"

// AccountClaims are the claims issued by the external auth service.
// AccountID falls back to the subject when absent.
type AccountClaims struct {
	AccountID string `json:"account_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *AccountClaims) account() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return c.Subject
}

func parseAccountToken(tokenString string, secret []byte) (*AccountClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccountClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// AccountAuthMiddleware validates HS256 Bearer tokens and requires the token's
// account to match the {accountId} route parameter. An empty secret disables
// the guard.
func AccountAuthMiddleware(secret string, logger *zap.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			claims, err := parseAccountToken(parts[1], key)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, "Token inválido ou expirado")
				return
			}

			accountID := chi.URLParam(r, "accountId")
			if accountID != "" && claims.account() != accountID {
				logger.Warn("auth: account mismatch",
					zap.String("path", r.URL.Path),
					zap.String("token_account", claims.account()),
					zap.String("account_id", accountID),
				)
				writeError(w, http.StatusForbidden, "Acesso negado para esta conta")
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, claims.account())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext extracts the authenticated account ID from context.
func AccountIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(accountIDKey).(string)
	return v
}
