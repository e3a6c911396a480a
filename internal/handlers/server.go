package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires the REST API, the websocket endpoint and /metrics onto one engine.
// ws may be nil when realtime updates are disabled.
func NewRouter(h *ChallengeHandler, ws gin.HandlerFunc, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	if ws != nil {
		r.GET("/ws/:challengeId", ws)
	}

	api := r.Group("/challenges")
	{
		api.POST("", h.CreateChallenge)
		api.GET("", h.ListChallenges)
		api.GET("/:challengeId", h.GetChallenge)
		api.POST("/:challengeId/join", h.JoinChallenge)
		api.POST("/:challengeId/leave", h.LeaveChallenge)
		api.POST("/:challengeId/tasks", h.RecordTask)
		api.POST("/:challengeId/eliminate", h.ProcessElimination)
		api.POST("/:challengeId/complete", h.CompleteChallenge)
		api.POST("/:challengeId/distribute", h.DistributePool)
		api.POST("/:challengeId/cancel", h.CancelChallenge)
		api.GET("/:challengeId/participants", h.ListParticipants)
		api.GET("/:challengeId/rankings", h.GetWeeklyRankings)
		api.GET("/:challengeId/payouts", h.ListPayouts)
		api.GET("/:challengeId/journal", h.Journal)
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
