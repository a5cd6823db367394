package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Clubs_Hub/internal/model"
	"Clubs_Hub/internal/pkg"
	"Clubs_Hub/internal/service"
)

type fakeAuth map[string]*pkg.Claims

func (f fakeAuth) Authenticate(_ context.Context, token string) (*pkg.Claims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	auth := fakeAuth{
		"student-token": {UserID: 7, Role: string(model.RoleStudent), SessionID: "s1"},
		"admin-token":   {UserID: 1, Role: string(model.RoleAdmin), SessionID: "s2"},
	}
	g := r.Group("/", Auth(auth))
	g.GET("/me", func(c *gin.Context) {
		a, ok := ActorFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"uid": a.UserID, "role": a.Role, "sid": a.SessionID, "rid": service.MetaFrom(c.Request.Context()).RequestID})
	})
	g.GET("/admin", RequireRole(model.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine()

	w := do(r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"missing authorization header"}`, w.Body.String())

	w = do(r, "/me", "nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "/me", "student-token")
	require.Equal(t, http.StatusOK, w.Code)
	rid := w.Header().Get(HeaderRequestID)
	require.NotEmpty(t, rid)
	assert.JSONEq(t, `{"uid":7,"role":"student","sid":"s1","rid":"`+rid+`"}`, w.Body.String())
}

func TestAuth_BadScheme(t *testing.T) {
	r := newEngine()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	r := newEngine()
	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "student-token").Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "admin-token").Code)
}

func TestRequestLogger_KeepsIncomingID(t *testing.T) {
	r := newEngine()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	req.Header.Set("Authorization", "Bearer student-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewRateLimiter(2)
	r := gin.New()
	r.POST("/login", l.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))
}
