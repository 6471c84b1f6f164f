package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatenet/edge-node/internal/accesslog"
	"github.com/gatenet/edge-node/internal/alert"
	"github.com/gatenet/edge-node/internal/auth"
	"github.com/gatenet/edge-node/internal/faceindex"
	"github.com/gatenet/edge-node/internal/gate"
	"github.com/gatenet/edge-node/internal/sync"
	"github.com/gatenet/edge-node/internal/tracker"
)

// Deps are the running components the admin surface reports on and exposes.
type Deps struct {
	APIKey    string
	GateID    string
	StartedAt time.Time

	Gate       *gate.Controller
	Tracker    *tracker.Tracker
	Index      *faceindex.Index
	SyncWorker *sync.Worker
	AccessLog  *accesslog.Store
	Alerts     *alert.State
	Hub        *alert.Hub
}

// NewRouter builds the admin gin.Engine: unauthenticated health probes and
// metrics, an API-key-gated status endpoint and alert websocket stream.
func NewRouter(d Deps, log *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggingMiddleware(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		if d.Index.Count() == 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "face index empty"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/")
	authed.Use(auth.APIKeyMiddleware(d.APIKey))

	authed.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.statusSnapshot())
	})

	authed.GET("/ws/alerts", d.Hub.HandleWS)

	return r
}

type statusResponse struct {
	GateID        string             `json:"gate_id"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Gate          gate.Stats         `json:"gate"`
	GateOpen      bool               `json:"gate_open"`
	Tracker       tracker.Stats      `json:"tracker"`
	FaceDBCount   int                `json:"face_db_count"`
	FaceDBVersion string             `json:"face_db_version"`
	Sync          sync.Status        `json:"sync"`
	DisplayMode   string             `json:"display_mode"`
	ActiveAlerts  int                `json:"active_alerts"`
}

func (d Deps) statusSnapshot() statusResponse {
	return statusResponse{
		GateID:        d.GateID,
		UptimeSeconds: time.Since(d.StartedAt).Seconds(),
		Gate:          d.Gate.Stats(),
		GateOpen:      d.Gate.IsOpen(),
		Tracker:       d.Tracker.Stats(),
		FaceDBCount:   d.Index.Count(),
		FaceDBVersion: d.Index.Version(),
		Sync:          d.SyncWorker.Status(),
		DisplayMode:   d.Alerts.Mode().String(),
		ActiveAlerts:  len(d.Alerts.Active()),
	}
}
