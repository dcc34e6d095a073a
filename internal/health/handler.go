package health

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"goldtrade/internal/httputil"
	"goldtrade/internal/venue"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Handler struct {
	pool        *pgxpool.Pool
	gateway     venue.Gateway
	venueSymbol string
	startedAt   time.Time
	httpAddr    string
	internalTok string
}

func NewHandler(pool *pgxpool.Pool, gateway venue.Gateway, venueSymbol string, startedAt time.Time, httpAddr, internalToken string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{
		pool:        pool,
		gateway:     gateway,
		venueSymbol: venueSymbol,
		startedAt:   start,
		httpAddr:    strings.TrimSpace(httpAddr),
		internalTok: strings.TrimSpace(internalToken),
	}
}

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	UptimeSec int64  `json:"uptime_sec"`
	Uptime    string `json:"uptime"`
}

type dependencyStat struct {
	Reachable  bool   `json:"reachable"`
	PingMs     int64  `json:"ping_ms"`
	Error      string `json:"error,omitempty"`
	CheckedAt  string `json:"checked_at"`
	TimeoutSec int    `json:"timeout_sec"`
}

type readinessResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	UptimeSec int64          `json:"uptime_sec"`
	Uptime    string         `json:"uptime"`
	Database  dependencyStat `json:"database"`
}

type poolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	AcquireCount  int64 `json:"acquire_count"`
}

type fullResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	UptimeSec int64             `json:"uptime_sec"`
	Uptime    string            `json:"uptime"`
	HTTPAddr  string            `json:"http_addr"`
	PID       int               `json:"pid"`
	Hostname  string            `json:"hostname"`
	GoVersion string            `json:"go_version"`
	Version   string            `json:"version"`
	Database  dependencyStat    `json:"database"`
	Pool      poolStats         `json:"pool"`
	Venue     dependencyStat    `json:"venue"`
	Runtime   map[string]int64  `json:"runtime"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func secureTokenEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) requireInternalToken(w http.ResponseWriter, r *http.Request) bool {
	if h.internalTok == "" {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "internal token is not configured"})
		return false
	}
	provided := strings.TrimSpace(r.Header.Get("X-Internal-Token"))
	if !secureTokenEqual(provided, h.internalTok) {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
		return false
	}
	return true
}

func (h *Handler) checkDB(ctx context.Context) dependencyStat {
	const timeoutSec = 1
	stat := dependencyStat{TimeoutSec: timeoutSec}
	if h.pool == nil {
		stat.Error = "pool is not configured"
		stat.CheckedAt = time.Now().UTC().Format(time.RFC3339)
		return stat
	}
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, timeoutSec*time.Second)
	err := h.pool.Ping(pingCtx)
	cancel()
	stat.PingMs = time.Since(start).Milliseconds()
	stat.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		stat.Error = err.Error()
	} else {
		stat.Reachable = true
	}
	return stat
}

func (h *Handler) checkVenue(ctx context.Context) dependencyStat {
	const timeoutSec = 3
	stat := dependencyStat{TimeoutSec: timeoutSec}
	if h.gateway == nil {
		stat.Error = "gateway is not configured"
		stat.CheckedAt = time.Now().UTC().Format(time.RFC3339)
		return stat
	}
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, timeoutSec*time.Second)
	_, err := h.gateway.GetSymbolInfo(checkCtx, h.venueSymbol)
	cancel()
	stat.PingMs = time.Since(start).Milliseconds()
	stat.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	if err != nil {
		stat.Error = err.Error()
	} else {
		stat.Reachable = true
	}
	return stat
}

// Get keeps compatibility: /health is the readiness summary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.Ready(w, r)
}

// Live is a lightweight liveness endpoint and does not check dependencies.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
	})
}

// Ready checks the primary dependency (database) and returns 503 when it's not reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.checkDB(r.Context())
	status := "ok"
	httpStatus := http.StatusOK
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, httpStatus, readinessResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		Database:  db,
	})
}

// Full returns full diagnostics, including venue bridge reachability, and
// is protected by X-Internal-Token.
func (h *Handler) Full(w http.ResponseWriter, r *http.Request) {
	if !h.requireInternalToken(w, r) {
		return
	}

	now := time.Now().UTC()
	uptime := h.uptime(now)
	db := h.checkDB(r.Context())
	vn := h.checkVenue(r.Context())

	var pool poolStats
	if h.pool != nil {
		stat := h.pool.Stat()
		pool = poolStats{
			TotalConns:    stat.TotalConns(),
			IdleConns:     stat.IdleConns(),
			AcquiredConns: stat.AcquiredConns(),
			MaxConns:      stat.MaxConns(),
			AcquireCount:  stat.AcquireCount(),
		}
	}

	version := ""
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		version = strings.TrimSpace(info.Main.Version)
	}
	host := ""
	if hn, err := os.Hostname(); err == nil {
		host = hn
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := "ok"
	httpStatus := http.StatusOK
	errs := map[string]string{}
	if !db.Reachable {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
		if db.Error != "" {
			errs["db"] = db.Error
		}
	}
	if !vn.Reachable {
		// Venue being down degrades trading but the service still serves
		// reads, so it does not flip readiness on its own.
		if vn.Error != "" {
			errs["venue"] = vn.Error
		}
	}

	resp := fullResponse{
		Status:    status,
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		HTTPAddr:  h.httpAddr,
		PID:       os.Getpid(),
		Hostname:  host,
		GoVersion: runtime.Version(),
		Version:   version,
		Database:  db,
		Pool:      pool,
		Venue:     vn,
		Runtime: map[string]int64{
			"goroutines":       int64(runtime.NumGoroutine()),
			"gomaxprocs":       int64(runtime.GOMAXPROCS(0)),
			"heap_alloc_bytes": int64(mem.HeapAlloc),
			"sys_bytes":        int64(mem.Sys),
			"gc_count":         int64(mem.NumGC),
		},
	}
	if len(errs) > 0 {
		resp.Errors = errs
	}
	httputil.WriteJSON(w, httpStatus, resp)
}
