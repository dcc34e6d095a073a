package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goldtrade/internal/accounts"
	"goldtrade/internal/auth"
	"goldtrade/internal/config"
	"goldtrade/internal/db"
	"goldtrade/internal/engine"
	"goldtrade/internal/health"
	"goldtrade/internal/httpserver"
	"goldtrade/internal/notify"
	"goldtrade/internal/reconcile"
	"goldtrade/internal/session"
	"goldtrade/internal/store"
	"goldtrade/internal/venue"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	startedAt := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if err := store.InitSchema(ctx, pool); err != nil {
		log.Fatal(err)
	}
	st := store.NewPostgres(pool)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	bridge := venue.NewClient(cfg.VenueBridgeURL, cfg.VenueBridgeSecret)
	gateway := venue.NewCachedGateway(bridge, rdb, cfg.PriceCacheTTL)

	venueSymbols := make([]string, 0, len(cfg.SymbolMap))
	for _, vs := range cfg.SymbolMap {
		venueSymbols = append(venueSymbols, vs)
	}
	stream := venue.NewStream(cfg.VenueBridgeURL, cfg.VenueBridgeSecret, venueSymbols, gateway)
	go stream.Run(ctx)

	eng := engine.New(st, gateway, cfg.SymbolMap, cfg.VenueMagic)
	notifier := notify.New(eng, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.NotifyEnabled)
	sessionMgr := session.NewManager(eng, gateway, cfg.SymbolMap)

	sweeper := reconcile.NewSweeper(st, gateway, eng)
	sched := cron.New()
	if err := sweeper.Schedule(sched, cfg.ReconcileSpec); err != nil {
		log.Fatal(err)
	}
	sched.Start()
	defer sched.Stop()

	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	authHandler := auth.NewHandler(authSvc)
	accountHandler := accounts.NewHandler(accounts.NewService(st))
	tradeHandler := httpserver.NewTradeHandler(eng, st, notifier)
	sessionHandler := httpserver.NewSessionHandler(sessionMgr, notifier)
	marketHandler := httpserver.NewMarketHandler(gateway, cfg.SymbolMap)

	venueSymbol := cfg.SymbolMap["GOLD"]
	if venueSymbol == "" {
		for _, vs := range cfg.SymbolMap {
			venueSymbol = vs
			break
		}
	}
	healthHandler := health.NewHandler(pool, gateway, venueSymbol, startedAt, cfg.HTTPAddr, cfg.InternalToken)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:    authHandler,
		AuthService:    authSvc,
		AccountHandler: accountHandler,
		TradeHandler:   tradeHandler,
		SessionHandler: sessionHandler,
		MarketHandler:  marketHandler,
		HealthHandler:  healthHandler,
		MetricsHandler: promhttp.Handler(),
		InternalToken:  cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Printf("server listening on %s (mode=%s)", cfg.HTTPAddr, cfg.RunMode)
	log.Printf("health endpoint: http://localhost%s/health", cfg.HTTPAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
