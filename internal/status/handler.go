package status

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stratlink/internal/journal"
	"stratlink/internal/server"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// StatsProvider is implemented by *server.Server.
type StatsProvider interface {
	Stats() server.Stats
}

// StrategyCounter is implemented by *strategy.Registry.
type StrategyCounter interface {
	Len() int
}

// HistoryReader is implemented by *journal.PostgresStore.
type HistoryReader interface {
	History(ctx context.Context, strategyID string, limit int) ([]journal.Entry, error)
}

// Handler serves the read-only status endpoints.
type Handler struct {
	stats      StatsProvider
	strategies StrategyCounter
	history    HistoryReader // nil when the journal is off
}

func NewHandler(stats StatsProvider, strategies StrategyCounter, history HistoryReader) *Handler {
	return &Handler{
		stats:      stats,
		strategies: strategies,
		history:    history,
	}
}

// RegisterRoutes registers the status routes
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/stats", h.Stats)
	if h.history != nil {
		router.GET("/strategies/:strategy_id/history", h.History)
	}
}

// Health reports liveness
// GET /healthz
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats reports registry and connection counters
// GET /stats
func (h *Handler) Stats(c *gin.Context) {
	s := h.stats.Stats()
	c.JSON(http.StatusOK, gin.H{
		"active_strategies":  h.strategies.Len(),
		"active_connections": s.ActiveConnections,
		"requests_total":     s.RequestsTotal,
		"uptime_seconds":     int64(s.Uptime.Seconds()),
	})
}

// History lists journaled transitions for one strategy, newest first
// GET /strategies/:strategy_id/history?limit=N
func (h *Handler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxHistoryLimit)})
			return
		}
		limit = n
	}

	entries, err := h.history.History(c.Request.Context(), c.Param("strategy_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy_id": c.Param("strategy_id"),
		"entries":     entries,
	})
}
