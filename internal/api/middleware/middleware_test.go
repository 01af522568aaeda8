package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/cpp-cyber/ldapauth/internal/token"
)

var issuedAt = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newIssuer(clock *clocktesting.FakeClock) *token.Issuer {
	return token.NewIssuer(&token.Config{
		Key:      "test-secret-key-for-jwt-signing",
		Issuer:   "ldapauth",
		Audience: "ldapauth-clients",
	}, clock)
}

func protectedRouter(issuer *token.Issuer) *gin.Engine {
	r := gin.New()
	r.Use(sessions.Sessions("session", cookie.NewStore([]byte("test-session-secret"))))

	r.GET("/login", func(c *gin.Context) {
		issued, _ := issuer.Issue(token.Subject{Username: "jdoe"}, issuedAt)
		session := sessions.Default(c)
		session.Set(SessionTokenKey, issued.Value)
		_ = session.Save()
		c.Status(http.StatusOK)
	})

	r.GET("/protected", TokenRequired(issuer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": GetClaims(c).Username})
	})
	return r
}

func TestTokenRequired(t *testing.T) {
	fakeClock := clocktesting.NewFakeClock(issuedAt)
	issuer := newIssuer(fakeClock)
	issued, err := issuer.Issue(token.Subject{Username: "jdoe"}, issuedAt)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		advance    time.Duration
		wantStatus int
		wantBody   string
	}{
		{name: "bearer token", header: "Bearer " + issued.Value, wantStatus: http.StatusOK, wantBody: `{"username":"jdoe"}`},
		{name: "lowercase scheme", header: "bearer " + issued.Value, wantStatus: http.StatusOK, wantBody: `{"username":"jdoe"}`},
		{name: "missing token", wantStatus: http.StatusUnauthorized, wantBody: `{"status":"error","message":"Unauthorized"}`},
		{name: "basic auth is ignored", header: "Basic amRvZTpwdw==", wantStatus: http.StatusUnauthorized, wantBody: `{"status":"error","message":"Unauthorized"}`},
		{name: "garbage token", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantBody: `{"status":"error","message":"Invalid token"}`},
		{name: "expired token", header: "Bearer " + issued.Value, advance: 2 * time.Hour, wantStatus: http.StatusUnauthorized, wantBody: `{"status":"error","message":"Token expired"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeClock.SetTime(issuedAt.Add(tt.advance))

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			protectedRouter(issuer).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestTokenRequired_SessionCookie(t *testing.T) {
	issuer := newIssuer(clocktesting.NewFakeClock(issuedAt))
	r := protectedRouter(issuer)

	login := httptest.NewRecorder()
	r.ServeHTTP(login, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, login.Code)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"jdoe"}`, w.Body.String())
}

func TestAdminRequired(t *testing.T) {
	issuer := newIssuer(clocktesting.NewFakeClock(issuedAt))

	tests := []struct {
		name     string
		admins   []string
		username string
		want     int
	}{
		{name: "listed admin", admins: []string{"admin"}, username: "admin", want: http.StatusOK},
		{name: "case insensitive", admins: []string{" Admin "}, username: "ADMIN", want: http.StatusOK},
		{name: "regular user", admins: []string{"admin"}, username: "jdoe", want: http.StatusForbidden},
		{name: "empty list admits nobody", admins: nil, username: "admin", want: http.StatusForbidden},
		{name: "no token", admins: []string{"admin"}, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(sessions.Sessions("session", cookie.NewStore([]byte("test-session-secret"))))
			r.POST("/admin", TokenRequired(issuer), AdminRequired(tt.admins), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.username != "" {
				issued, err := issuer.Issue(token.Subject{Username: tt.username}, issuedAt)
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer "+issued.Value)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	handler, closeFn, err := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 2, StoreType: RateLimitStoreMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	r := gin.New()
	r.POST("/authenticate", handler, func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/authenticate", nil)
		req.RemoteAddr = "203.0.113.7:4242"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodPost, "/authenticate", nil)
	other.RemoteAddr = "198.51.100.9:4242"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_UnknownStore(t *testing.T) {
	_, _, err := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 2, StoreType: "etcd"})
	assert.Error(t, err)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware("https://portal.example.com"))
	r.POST("/api/v1/auth/authenticate", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/auth/authenticate", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "6f1c1b8e-5d55-4b8a-9a3f-1f2b3c4d5e6f")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "6f1c1b8e-5d55-4b8a-9a3f-1f2b3c4d5e6f", w.Header().Get(RequestIDHeader))

	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRateLimitConfigValidate(t *testing.T) {
	assert.NoError(t, RateLimitConfig{RequestsPerMinute: 10, StoreType: RateLimitStoreMemory}.Validate())
	assert.Error(t, RateLimitConfig{RequestsPerMinute: 0}.Validate())
	assert.Error(t, RateLimitConfig{RequestsPerMinute: 10, StoreType: RateLimitStoreRedis}.Validate())
}
