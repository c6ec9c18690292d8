package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wiffzack/printspool/internal/config"
)

func newAuthRouter(t *testing.T, cfg config.AuthConfig) (*gin.Engine, *AuthMiddleware) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	auth := NewAuthMiddleware(cfg)
	router := gin.New()
	router.POST("/token", auth.TokenHandler)
	router.GET("/private", auth.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router, auth
}

func enabledConfig(t *testing.T) config.AuthConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AuthConfig{JWTSecret: "test-secret", PasswordHash: string(hash), TokenTTL: time.Hour}
}

func TestRequireAuth_DisabledPassesThrough(t *testing.T) {
	router, auth := newAuthRouter(t, config.AuthConfig{})
	assert.False(t, auth.Enabled())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"password":"x"}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequireAuth_RejectsMissingAndBadTokens(t *testing.T) {
	router, _ := newAuthRouter(t, enabledConfig(t))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenHandler_WrongPassword(t *testing.T) {
	router, _ := newAuthRouter(t, enabledConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"password":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTokenHandler_IssuesUsableToken(t *testing.T) {
	router, _ := newAuthRouter(t, enabledConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(`{"password":"s3cret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: resp.Token})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidateToken_Expired(t *testing.T) {
	_, auth := newAuthRouter(t, enabledConfig(t))
	auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := auth.generateToken()
	require.NoError(t, err)

	_, err = auth.validateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_OtherSecret(t *testing.T) {
	_, issuerAuth := newAuthRouter(t, enabledConfig(t))
	token, _, err := issuerAuth.generateToken()
	require.NoError(t, err)

	other := NewAuthMiddleware(config.AuthConfig{JWTSecret: "different"})
	_, err = other.validateToken(token)
	assert.Error(t, err)
}
