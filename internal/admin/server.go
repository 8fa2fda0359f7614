// Package admin exposes a read-only HTTP surface over a running
// client: health, readiness, metrics, and introspection of topics,
// goals, and link state.
package admin

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/perchlabs/buslink/internal/observability"
	"github.com/perchlabs/buslink/pkg/buslink"
)

type Server struct {
	name    string
	addr    string
	client  *buslink.Client
	router  *gin.Engine
	started time.Time
}

func New(name, addr string, corsOrigins []string, client *buslink.Client) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		name:    name,
		addr:    addr,
		client:  client,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Serve() error {
	return s.router.Run(s.addr)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.name,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.client.Connected() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.client.Connected(),
			"uptime":  time.Since(s.started).String(),
			"service": s.name,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/link", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"connected":    s.client.Connected(),
			"has_error":    s.client.HasError(),
			"last_send":    s.client.LastSend(),
			"last_receive": s.client.LastReceive(),
			"queue_depth":  s.client.QueueDepth(),
		})
	})

	s.router.GET("/topics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"topics":   s.client.Topics(),
			"services": s.client.Services(),
		})
	})

	s.router.GET("/goals", func(c *gin.Context) {
		handles := s.client.ActiveGoals()
		goals := make([]goalInfo, 0, len(handles))
		for _, h := range handles {
			goals = append(goals, goalInfo{
				Action:  h.Action(),
				GoalID:  h.ID(),
				Status:  h.Status().String(),
				Created: h.CreatedAt(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"goals": goals})
	})
}

type goalInfo struct {
	Action  string    `json:"action"`
	GoalID  string    `json:"goal_id"`
	Status  string    `json:"status"`
	Created time.Time `json:"created"`
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		out = []string{"http://localhost:3000"}
	}
	return out
}
