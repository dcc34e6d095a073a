package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr          string
	DBDSN             string
	JWTIssuer         string
	JWTSecret         string
	JWTTTL            time.Duration
	InternalToken     string
	VenueBridgeURL    string
	VenueBridgeSecret string
	VenueMagic        int64
	SymbolMap         map[string]string
	RedisAddr         string
	PriceCacheTTL     time.Duration
	ReconcileSpec     string
	TelegramBotToken  string
	TelegramChatID    int64
	NotifyEnabled     bool
	RunMode           string
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.VenueBridgeURL = os.Getenv("VENUE_BRIDGE_URL")
	if c.VenueBridgeURL == "" {
		missing = append(missing, "VENUE_BRIDGE_URL")
	}
	c.VenueBridgeSecret = os.Getenv("VENUE_BRIDGE_SECRET")
	if c.VenueBridgeSecret == "" {
		missing = append(missing, "VENUE_BRIDGE_SECRET")
	}
	magicRaw := strings.TrimSpace(os.Getenv("VENUE_MAGIC"))
	if magicRaw == "" {
		c.VenueMagic = 234000
	} else {
		magic, err := strconv.ParseInt(magicRaw, 10, 64)
		if err != nil {
			return c, errors.New("invalid VENUE_MAGIC")
		}
		c.VenueMagic = magic
	}
	symbols, err := parseSymbolMap(os.Getenv("SYMBOL_MAP"))
	if err != nil {
		return c, err
	}
	c.SymbolMap = symbols
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	cacheTTL := os.Getenv("PRICE_CACHE_TTL")
	if cacheTTL == "" {
		c.PriceCacheTTL = 2 * time.Second
	} else {
		d, err := time.ParseDuration(cacheTTL)
		if err != nil {
			return c, err
		}
		c.PriceCacheTTL = d
	}
	c.ReconcileSpec = os.Getenv("RECONCILE_SPEC")
	if c.ReconcileSpec == "" {
		c.ReconcileSpec = "@every 1m"
	}
	c.RunMode = strings.ToLower(strings.TrimSpace(os.Getenv("RUN_MODE")))
	if c.RunMode == "" {
		c.RunMode = "development"
	}
	if c.RunMode != "development" && c.RunMode != "production" {
		return c, errors.New("invalid RUN_MODE: use development or production")
	}
	notifyEnabled := os.Getenv("NOTIFY_ENABLED")
	if notifyEnabled == "" {
		c.NotifyEnabled = false
	} else {
		b, err := strconv.ParseBool(notifyEnabled)
		if err != nil {
			return c, err
		}
		c.NotifyEnabled = b
	}
	c.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if c.NotifyEnabled && c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	chatRaw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))
	if chatRaw != "" {
		chatID, err := strconv.ParseInt(chatRaw, 10, 64)
		if err != nil {
			return c, errors.New("invalid TELEGRAM_CHAT_ID")
		}
		c.TelegramChatID = chatID
	}
	if c.NotifyEnabled && c.TelegramChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + join(missing))
	}
	return c, nil
}

// parseSymbolMap reads "GOLD=XAUUSD,SILVER=XAGUSD" pairs. Empty input
// falls back to the single gold mapping.
func parseSymbolMap(raw string) (map[string]string, error) {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		out["GOLD"] = "XAUUSD"
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.New("invalid SYMBOL_MAP entry: " + pair)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

func join(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for i := 1; i < len(items); i++ {
		out += "," + items[i]
	}
	return out
}
