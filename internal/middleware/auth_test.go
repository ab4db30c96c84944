package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, key []byte, sub, role string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: sub + "@example.com",
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	s, err := token.SignedString(key)
	require.NoError(t, err)
	return s
}

func serve(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	a := ActorFrom(c)
	return c.JSON(http.StatusOK, map[string]any{"id": a.ID, "email": a.Email, "admin": a.IsAdmin})
}

func TestRequireAuth(t *testing.T) {
	e := echo.New()
	e.GET("/", whoami, RequireAuth(secret))

	rec := serve(e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing access token")

	rec = serve(e, sign(t, []byte("other"), "u-1", RoleUser, time.Hour))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, sign(t, secret, "u-1", RoleUser, -time.Minute))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, sign(t, secret, "u-1", RoleUser, time.Hour))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u-1","email":"u-1@example.com","admin":false}`, rec.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	e := echo.New()
	e.GET("/", whoami, OptionalAuth(secret))

	rec := serve(e, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"","email":"","admin":false}`, rec.Body.String())

	rec = serve(e, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, sign(t, secret, "u-2", RoleAdmin, time.Hour))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"u-2","email":"u-2@example.com","admin":true}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/", whoami, RequireAuth(secret), RequireRole(RoleAdmin))

	assert.Equal(t, http.StatusForbidden, serve(e, sign(t, secret, "u-1", RoleUser, time.Hour)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, sign(t, secret, "u-1", "", time.Hour)).Code)
	assert.Equal(t, http.StatusOK, serve(e, sign(t, secret, "u-1", RoleAdmin, time.Hour)).Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(base))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadGateway, "upstream") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(echo.HeaderXRequestID, "rid-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "rid-1", rec.Header().Get(echo.HeaderXRequestID))
	assert.Contains(t, buf.String(), `"request_id":"rid-1"`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)

	buf.Reset()
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}
