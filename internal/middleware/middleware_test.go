package middleware

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus/hooks/test"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "github.com/ulule/limiter/v3"
    "github.com/ulule/limiter/v3/drivers/store/memory"

    "github.com/iliyamo/court-slot-booking/internal/config"
    "github.com/iliyamo/court-slot-booking/internal/utils"
)

const secret = "test-secret"

func whoami(c echo.Context) error {
    id, _ := UserID(c)
    return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": Role(c), "admin": IsAdmin(c)})
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(method, path, nil)
    if token != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuth(t *testing.T) {
    e := echo.New()
    e.GET("/me", whoami, JWTAuth(secret))

    tok, err := utils.NewAccessToken(secret, 42, "admin", time.Hour)
    require.NoError(t, err)
    rec := serve(e, http.MethodGet, "/me", tok.Token)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"user_id":42,"role":"ADMIN","admin":true}`, rec.Body.String())

    // A decimal string subject is accepted as well.
    strTok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "role": "CUSTOMER", "exp": time.Now().Add(time.Hour).Unix()})
    signed, err := strTok.SignedString([]byte(secret))
    require.NoError(t, err)
    rec = serve(e, http.MethodGet, "/me", signed)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"user_id":7,"role":"CUSTOMER","admin":false}`, rec.Body.String())
}

func TestJWTAuthRejects(t *testing.T) {
    e := echo.New()
    e.GET("/me", whoami, JWTAuth(secret))

    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "").Code)

    other, err := utils.NewAccessToken("other-secret", 42, "ADMIN", time.Hour)
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", other.Token).Code)

    expired, err := utils.NewAccessToken(secret, 42, "ADMIN", -time.Minute)
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", expired.Token).Code)

    noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "ADMIN", "exp": time.Now().Add(time.Hour).Unix()})
    signed, err := noSub.SignedString([]byte(secret))
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", signed).Code)
}

func TestSubject(t *testing.T) {
    id, ok := subject(float64(12))
    assert.True(t, ok)
    assert.Equal(t, uint64(12), id)
    _, ok = subject(float64(1.5))
    assert.False(t, ok)
    _, ok = subject("abc")
    assert.False(t, ok)
    _, ok = subject(nil)
    assert.False(t, ok)
}

func TestRequireRole(t *testing.T) {
    e := echo.New()
    e.GET("/admin", whoami, JWTAuth(secret), RequireRole(RoleAdmin))

    customer, err := utils.NewAccessToken(secret, 1, RoleCustomer, time.Hour)
    require.NoError(t, err)
    admin, err := utils.NewAccessToken(secret, 2, RoleAdmin, time.Hour)
    require.NoError(t, err)

    assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", customer.Token).Code)
    assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/admin", admin.Token).Code)
}

func TestRateLimitPerUser(t *testing.T) {
    log, _ := test.NewNullLogger()
    lim := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})
    e := echo.New()
    e.POST("/book", whoami, JWTAuth(secret), RateLimit(lim, "book", log))

    alice, err := utils.NewAccessToken(secret, 1, RoleCustomer, time.Hour)
    require.NoError(t, err)
    bob, err := utils.NewAccessToken(secret, 2, RoleCustomer, time.Hour)
    require.NoError(t, err)

    assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/book", alice.Token).Code)
    rec := serve(e, http.MethodPost, "/book", alice.Token)
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
    assert.Equal(t, http.StatusTooManyRequests, serve(e, http.MethodPost, "/book", alice.Token).Code)
    assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/book", bob.Token).Code)
}

func TestRateLimitDisabled(t *testing.T) {
    lim, err := NewRedisLimiter(config.RateLimitConfig{Enabled: false, Rate: "1-S"}, nil)
    require.NoError(t, err)
    assert.Nil(t, lim)

    log, _ := test.NewNullLogger()
    e := echo.New()
    e.GET("/x", whoami, RateLimit(nil, "x", log))
    for i := 0; i < 5; i++ {
        assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", "").Code)
    }
}

// fakeRedis stores values in a map; only Get and SetEx are used by the cache.
type fakeRedis struct {
    redis.Cmdable
    data map[string][]byte
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
    v, ok := f.data[key]
    if !ok {
        return redis.NewStringResult("", redis.Nil)
    }
    return redis.NewStringResult(string(v), nil)
}

func (f *fakeRedis) SetEx(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
    f.data[key] = value.([]byte)
    return redis.NewStatusResult("OK", nil)
}

func TestRedisCache(t *testing.T) {
    rdb := &fakeRedis{data: map[string][]byte{}}
    calls := 0
    e := echo.New()
    e.GET("/quote", func(c echo.Context) error {
        calls++
        if c.QueryParam("court_id") == "" {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "court_id"})
        }
        return c.JSON(http.StatusOK, echo.Map{"total": 65000})
    }, NewRedisCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}, rdb))

    rec := serve(e, http.MethodGet, "/quote?court_id=10&date=2030-03-16", "")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

    rec = serve(e, http.MethodGet, "/quote?date=2030-03-16&court_id=10", "")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
    assert.JSONEq(t, `{"total":65000}`, rec.Body.String())
    assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get(echo.HeaderContentType))
    assert.Equal(t, 1, calls)

    // Errors are not cached.
    serve(e, http.MethodGet, "/quote", "")
    serve(e, http.MethodGet, "/quote", "")
    assert.Equal(t, 3, calls)
}

func TestPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": []string{"application/json"}}
    bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
    require.NoError(t, err)
    status, got, body, ok := decodePayload(bs)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, hdr, got)
    assert.Equal(t, `{"a":1}`, string(body))

    _, _, _, ok = decodePayload([]byte{0, 1})
    assert.False(t, ok)
}

func TestRequestLogger(t *testing.T) {
    log, hook := test.NewNullLogger()
    e := echo.New()
    e.Use(RequestLogger(log))
    e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })
    e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

    serve(e, http.MethodGet, "/ok", "")
    require.NotNil(t, hook.LastEntry())
    assert.Equal(t, 204, hook.LastEntry().Data["status"])
    assert.Equal(t, "/ok", hook.LastEntry().Data["route"])

    rec := serve(e, http.MethodGet, "/boom", "")
    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Equal(t, "error", hook.LastEntry().Level.String())
}
