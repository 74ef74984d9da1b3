package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/crediexpress/corebanking/internal/services"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"

	RoleClient    = "CLIENT"
	RoleBankAdmin = "BANK_ADMIN"
)

var authRedis *redis.Client

// InitAuthMiddleware enables the revoked-token check. A nil client skips it.
func InitAuthMiddleware(client *redis.Client) {
	authRedis = client
}

type Principal struct {
	UserID string
	Role   string
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := viper.GetString("jwt.secret_key")
		if secret == "" {
			writeAuthError(w, http.StatusInternalServerError, "MISSING_JWT_SECRET", "Server configuration error")
			return
		}

		token := extractToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "MISSING_TOKEN", "Access denied: no token provided")
			return
		}

		principal, jti, err := validateToken(token, secret)
		if errors.Is(err, jwt.ErrTokenExpired) {
			writeAuthError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Session expired, please sign in again")
			return
		}
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
			return
		}

		if isRevoked(r.Context(), jti) {
			writeAuthError(w, http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, principal.UserID)
		ctx = context.WithValue(ctx, roleKey, principal.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Role(r.Context()) != RoleBankAdmin {
			writeAuthError(w, http.StatusForbidden, "FORBIDDEN", "Administrator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func Role(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// WithPrincipal stores an authenticated caller in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, userIDKey, p.UserID)
	return context.WithValue(ctx, roleKey, p.Role)
}

func extractToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("x-token")); token != "" {
		return token
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func validateToken(tokenString, secret string) (*Principal, string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if issuer := viper.GetString("jwt.issuer"); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := viper.GetString("jwt.audience"); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, "", err
	}
	if !token.Valid {
		return nil, "", jwt.ErrTokenUnverifiable
	}

	userID := claimString(claims, "sub")
	if userID == "" {
		userID = claimString(claims, "uid")
	}
	if userID == "" {
		return nil, "", fmt.Errorf("%w: missing subject", jwt.ErrTokenInvalidClaims)
	}

	role := claimString(claims, "role")
	if role == "" {
		role = RoleClient
	}

	return &Principal{UserID: userID, Role: role}, claimString(claims, "jti"), nil
}

func claimString(claims jwt.MapClaims, name string) string {
	switch v := claims[name].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func isRevoked(ctx context.Context, jti string) bool {
	if authRedis == nil || jti == "" {
		return false
	}

	n, err := authRedis.Exists(ctx, "auth:revoked:"+jti).Result()
	if err != nil {
		log.Printf("[AUTH] Revocation check failed for %s: %v", jti, err)
		return false
	}
	return n > 0
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(services.ErrorResponse{Error: message, Code: code})
}
