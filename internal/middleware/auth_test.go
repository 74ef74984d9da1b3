package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crediexpress/corebanking/internal/services"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func setupAuth(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	viper.Set("jwt.issuer", "")
	viper.Set("jwt.audience", "")
	InitAuthMiddleware(nil)
	t.Cleanup(func() {
		viper.Set("jwt.secret_key", "")
		InitAuthMiddleware(nil)
	})
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"userId": UserID(r.Context()),
			"role":   Role(r.Context()),
		})
	})
}

func serve(h http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var resp services.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestAuthMiddleware(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	t.Run("bearer token with sub and role", func(t *testing.T) {
		setupAuth(t)
		token := signToken(t, jwt.MapClaims{"sub": "user-1", "role": RoleBankAdmin, "exp": exp})

		w := serve(AuthMiddleware(echoPrincipal()), map[string]string{"Authorization": "Bearer " + token})

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "user-1", body["userId"])
		assert.Equal(t, RoleBankAdmin, body["role"])
	})

	t.Run("x-token with uid defaults to client", func(t *testing.T) {
		setupAuth(t)
		token := signToken(t, jwt.MapClaims{"uid": "user-2", "exp": exp})

		w := serve(AuthMiddleware(echoPrincipal()), map[string]string{"x-token": token})

		assert.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "user-2", body["userId"])
		assert.Equal(t, RoleClient, body["role"])
	})

	t.Run("missing token", func(t *testing.T) {
		setupAuth(t)

		w := serve(AuthMiddleware(echoPrincipal()), nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "MISSING_TOKEN", errorCode(t, w))
	})

	t.Run("expired token", func(t *testing.T) {
		setupAuth(t)
		token := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})

		w := serve(AuthMiddleware(echoPrincipal()), map[string]string{"Authorization": "Bearer " + token})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "TOKEN_EXPIRED", errorCode(t, w))
	})

	t.Run("wrong signature", func(t *testing.T) {
		setupAuth(t)
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte("other"))
		require.NoError(t, err)

		w := serve(AuthMiddleware(echoPrincipal()), map[string]string{"Authorization": "Bearer " + token})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_TOKEN", errorCode(t, w))
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		setupAuth(t)
		viper.Set("jwt.issuer", "login-service")
		token := signToken(t, jwt.MapClaims{"sub": "user-1", "iss": "someone-else", "exp": exp})

		w := serve(AuthMiddleware(echoPrincipal()), map[string]string{"Authorization": "Bearer " + token})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_TOKEN", errorCode(t, w))
	})

	t.Run("revoked token", func(t *testing.T) {
		setupAuth(t)
		redisClient, redisMock := redismock.NewClientMock()
		InitAuthMiddleware(redisClient)
		redisMock.ExpectExists("auth:revoked:jti-1").SetVal(1)
		token := signToken(t, jwt.MapClaims{"sub": "user-1", "jti": "jti-1", "exp": exp})

		w := serve(AuthMiddleware(echoPrincipal()), map[string]string{"Authorization": "Bearer " + token})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "TOKEN_REVOKED", errorCode(t, w))
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("missing secret", func(t *testing.T) {
		setupAuth(t)
		viper.Set("jwt.secret_key", "")

		w := serve(AuthMiddleware(echoPrincipal()), map[string]string{"x-token": "anything"})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "MISSING_JWT_SECRET", errorCode(t, w))
	})
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(echoPrincipal())

	t.Run("admin passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "admin-1", Role: RoleBankAdmin}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("client is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: "user-1", Role: RoleClient}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
