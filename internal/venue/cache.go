package venue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedGateway wraps a Gateway with a Redis read-through cache for
// quotes and symbol metadata. Trade placement and closure always go to
// the bridge; only idempotent reads are cached.
type CachedGateway struct {
	Gateway
	rdb *redis.Client
	ttl time.Duration
}

func NewCachedGateway(gw Gateway, rdb *redis.Client, ttl time.Duration) *CachedGateway {
	return &CachedGateway{Gateway: gw, rdb: rdb, ttl: ttl}
}

func quoteKey(symbol string) string  { return "venue:quote:" + symbol }
func symbolKey(symbol string) string { return "venue:symbol:" + symbol }

func (g *CachedGateway) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	if raw, err := g.rdb.Get(ctx, quoteKey(symbol)).Bytes(); err == nil {
		var q Quote
		if json.Unmarshal(raw, &q) == nil {
			return q, nil
		}
	}
	q, err := g.Gateway.GetPrice(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	g.storeQuote(ctx, q)
	return q, nil
}

// StoreQuote lets the price stream push fresh ticks into the cache.
func (g *CachedGateway) StoreQuote(ctx context.Context, q Quote) {
	g.storeQuote(ctx, q)
}

func (g *CachedGateway) storeQuote(ctx context.Context, q Quote) {
	raw, err := json.Marshal(q)
	if err != nil {
		return
	}
	// Cache failures are not fatal; the bridge remains the source of truth.
	g.rdb.Set(ctx, quoteKey(q.Symbol), raw, g.ttl)
}

func (g *CachedGateway) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if raw, err := g.rdb.Get(ctx, symbolKey(symbol)).Bytes(); err == nil {
		var info SymbolInfo
		if json.Unmarshal(raw, &info) == nil {
			return info, nil
		}
	}
	info, err := g.Gateway.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return SymbolInfo{}, err
	}
	if raw, err := json.Marshal(info); err == nil {
		// Symbol metadata changes rarely; cache it longer than quotes.
		g.rdb.Set(ctx, symbolKey(symbol), raw, 10*g.ttl)
	}
	return info, nil
}
