package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSymbolMap(t *testing.T) {
	m, err := parseSymbolMap("")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"GOLD": "XAUUSD"}, m)

	m, err = parseSymbolMap("GOLD=XAUUSD,SILVER=XAGUSD")
	require.NoError(t, err)
	require.Equal(t, "XAGUSD", m["SILVER"])
	require.Len(t, m, 2)

	_, err = parseSymbolMap("GOLD")
	require.Error(t, err)

	_, err = parseSymbolMap("=XAUUSD")
	require.Error(t, err)
}

func TestLoadReportsMissingKeys(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DB_DSN", "JWT_ISSUER", "JWT_SECRET", "JWT_TTL", "INTERNAL_API_TOKEN", "VENUE_BRIDGE_URL", "VENUE_BRIDGE_SECRET", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP_ADDR")
	require.Contains(t, err.Error(), "DB_DSN")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DB_DSN", "postgres://localhost/goldtrade")
	t.Setenv("JWT_ISSUER", "goldtrade")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_TTL", "12h")
	t.Setenv("INTERNAL_API_TOKEN", "tok")
	t.Setenv("VENUE_BRIDGE_URL", "http://bridge:5000")
	t.Setenv("VENUE_BRIDGE_SECRET", "bs")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	for _, k := range []string{"VENUE_MAGIC", "SYMBOL_MAP", "PRICE_CACHE_TTL", "RECONCILE_SPEC", "RUN_MODE", "NOTIFY_ENABLED"} {
		t.Setenv(k, "")
	}

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, int64(234000), c.VenueMagic)
	require.Equal(t, "XAUUSD", c.SymbolMap["GOLD"])
	require.Equal(t, "@every 1m", c.ReconcileSpec)
	require.Equal(t, "development", c.RunMode)
	require.False(t, c.NotifyEnabled)
}
