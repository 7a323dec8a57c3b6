package utils

import (
	"context"
	"os"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/slimcircle/config"
)

func TestMain(m *testing.M) {
	// no redis host: cache, lock and blacklist run on their in-process fallbacks
	config.Set(config.AppConfig{JWTSecret: "unit-secret"})
	os.Exit(m.Run())
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("user_1", "ada@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "user_1", claims.Subject)
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := GenerateToken("user_1", "", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user_1"})
	forged, err := other.SignedString([]byte("someone-else"))
	require.NoError(t, err)
	_, err = ParseToken(forged)
	assert.Error(t, err)

	// subject-only tokens from the identity provider are accepted
	subjectOnly := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user_2",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := subjectOnly.SignedString([]byte("unit-secret"))
	require.NoError(t, err)
	claims, err := ParseToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user_2", claims.UserID)

	anonymous := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{})
	signed, err = anonymous.SignedString([]byte("unit-secret"))
	require.NoError(t, err)
	_, err = ParseToken(signed)
	assert.Error(t, err)
}

func TestBlacklistFallback(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsTokenBlacklisted(ctx, "tok-a"))

	BlacklistToken(ctx, "tok-a", time.Now().Add(time.Minute))
	assert.True(t, IsTokenBlacklisted(ctx, "tok-a"))

	BlacklistToken(ctx, "tok-b", time.Now().Add(-time.Minute))
	assert.False(t, IsTokenBlacklisted(ctx, "tok-b"), "already expired tokens are not stored")
}

func TestDualTimeString(t *testing.T) {
	// 2024-07-10 00:00 UTC is 8:00 PM in New York and 5:00 PM in Los Angeles
	at := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "8:00 PM EDT (5:00 PM PDT your time)", DualTimeString(at, "America/New_York", "America/Los_Angeles"))
	assert.Equal(t, "8:00 PM EDT", DualTimeString(at, "America/New_York", "America/New_York"))
	assert.Equal(t, "8:00 PM EDT", DualTimeString(at, "America/New_York", ""))
	assert.Equal(t, "12:00 AM UTC", FormatClock(at, "Not/AZone"))
	assert.Equal(t, "Tuesday, Jul 9 at 8:00 PM EDT", FormatCallTime(at, "America/New_York"))
}

func TestLocalDate(t *testing.T) {
	at := time.Date(2024, 3, 13, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-13", LocalDate(at, time.UTC))
	assert.Equal(t, "2024-03-12", LocalDate(at, LoadLocation("America/Chicago")))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "Weekly huddle", SanitizeText("  Weekly <b>huddle</b> "))
	assert.Equal(t, "", SanitizeText(`<script>alert("x")</script>`))
	assert.Equal(t, "Tom & Jerry", SanitizeText("Tom &amp; Jerry"))
}

func TestRedisCacheWithoutClient(t *testing.T) {
	ctx := context.Background()
	c := NewRedisCache(nil)

	var out map[string]int
	c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute)
	assert.False(t, c.GetJSON(ctx, "k", &out))
	assert.NoError(t, c.InvalidatePrefix(ctx, "k"))

	ok, err := c.TryLock(ctx, "lock", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	c.Unlock(ctx, "lock")
}

func TestServeRunsShutdownHooks(t *testing.T) {
	srv := NewServer("127.0.0.1:0", nil, time.Second, time.Second)
	var order []string
	srv.OnShutdown(func(context.Context) { order = append(order, "runner") })
	srv.OnShutdown(func(context.Context) { order = append(order, "app") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, srv.Serve(ctx))
	assert.Equal(t, []string{"runner", "app"}, order)
}
