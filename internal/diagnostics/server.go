// Package diagnostics runs the agent's HTTP surface: liveness/readiness
// checks, Prometheus metrics, and debug endpoints over the matrix
// manager, trigger engine, and publish relay, grounded on the teacher's
// own gin + heptiolabs/healthcheck + promhttp combination (e.g.
// cmd/mqtt-to-postgresql/main.go, cmd/factoryinsight/http.go).
package diagnostics

import (
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/edgefleet/inspection-engine/internal/matrix"
	"github.com/edgefleet/inspection-engine/internal/transport/relay"
	"github.com/edgefleet/inspection-engine/internal/trigger"
)

// AliveChecker reports whether a component is making progress, used to
// drive the readiness checks that /healthz reports.
type AliveChecker interface {
	IsAlive() bool
}

// Server hosts /healthz, /metrics, /debug/matrix, /debug/triggers,
// /debug/publish-queue.
type Server struct {
	router *gin.Engine
	health healthcheck.Handler
	logger *zap.SugaredLogger
}

// New wires the router, grounded on the teacher's ginzap.Ginzap/
// RecoveryWithZap middleware pair.
func New(logger *zap.SugaredLogger, worker, mqttChannel AliveChecker, mgr *matrix.Manager, trig *trigger.Engine, rel *relay.Relay) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(ginzap.Ginzap(logger.Desugar(), time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger.Desugar(), true))

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(100000))
	health.AddReadinessCheck("inspection-worker", aliveCheck(worker))
	health.AddReadinessCheck("mqtt-channel", aliveCheck(mqttChannel))

	s := &Server{router: router, health: health, logger: logger}

	router.GET("/healthz", gin.WrapF(health.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/debug/matrix", s.debugMatrix(mgr))
	router.GET("/debug/triggers", s.debugTriggers(mgr, trig))
	router.GET("/debug/publish-queue", s.debugPublishQueue(rel))

	return s
}

// Run blocks serving on addr.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func aliveCheck(c AliveChecker) healthcheck.Check {
	return func() error {
		if c.IsAlive() {
			return nil
		}
		return fmt.Errorf("not alive")
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("request_id", uuid.NewString())
		c.Next()
	}
}

func (s *Server) debugMatrix(mgr *matrix.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		mx := mgr.Current()
		resp := gin.H{
			"condition_count": len(mx.Conditions),
			"node_count":      len(mx.NodeStorage),
		}
		if err := mgr.LastRejection(); err != nil {
			resp["last_rejection"] = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// debugPublishQueue reports the publish queue's depth and cumulative
// dropped-trigger count (spec §4.5 step g, §7 "QueueFull").
func (s *Server) debugPublishQueue(rel *relay.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"queue_length": rel.QueueLen(),
			"dropped":      rel.QueueDropped(),
		})
	}
}

func (s *Server) debugTriggers(mgr *matrix.Manager, trig *trigger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		mx := mgr.Current()
		states := make([]gin.H, 0, len(mx.Conditions))
		for i := range mx.Conditions {
			if desc, ok := trig.DebugState(i); ok {
				states = append(states, gin.H{"condition_index": i, "state": desc})
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"states": states,
			"audit":  trig.AuditSnapshot(),
		})
	}
}
