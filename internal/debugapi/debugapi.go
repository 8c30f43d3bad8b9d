// Package debugapi exposes the small HTTP debug surface: a cache snapshot
// and a health/uptime endpoint, adapted from the teacher's gin+gopsutil
// health handler down to the two read-only views this resolver needs.
package debugapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lafolle/rrdns/internal/cache"
)

// CacheSnapshotter is the subset of *cache.Cache the debug API needs.
type CacheSnapshotter interface {
	Snapshot() []cache.Entries
	Len() int
}

// Server wraps a gin engine exposing /debug/cache and /debug/health.
type Server struct {
	engine    *gin.Engine
	startTime time.Time
}

// healthResponse mirrors the teacher's StatusResponse/ServerStatsResponse
// shape, trimmed to the fields a stateless resolver can actually report.
type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CacheEntries  int     `json:"cache_entries"`
	MemUsedMB     float64 `json:"mem_used_mb,omitempty"`
}

// New builds the debug HTTP handler, exposing GET /debug/cache and the
// supplemented GET /debug/health. gin runs in release mode; this is an
// operational surface, not a user-facing API. Metrics are served
// separately on their own listener (see cmd/rrdns), in plain net/http,
// since a Prometheus scrape endpoint has no business going through gin.
func New(c CacheSnapshotter) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, startTime: time.Now()}

	engine.GET("/debug/cache", s.handleCache(c))
	engine.GET("/debug/health", s.handleHealth(c))

	return s
}

// Handler returns the http.Handler to mount on a listener.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleCache(c CacheSnapshotter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, c.Snapshot())
	}
}

func (s *Server) handleHealth(c CacheSnapshotter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		resp := healthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
			Goroutines:    runtime.NumGoroutine(),
			CacheEntries:  c.Len(),
		}
		if vm, err := mem.VirtualMemory(); err == nil {
			resp.MemUsedMB = float64(vm.Used) / 1024 / 1024
		}
		ctx.JSON(http.StatusOK, resp)
	}
}
