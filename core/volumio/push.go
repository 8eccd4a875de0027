package volumio

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// maxStateBody bounds the size of an accepted push notification.
const maxStateBody = 1 << 20

// StateFunc receives every decoded player state.
type StateFunc func(ctx context.Context, s State)

// GrabLister reports the grabs currently in flight.
type GrabLister interface {
	InFlight() []string
}

// PushHandler serves the endpoints Volumio pushes state notifications to.
type PushHandler struct {
	onState StateFunc
	grabs   GrabLister
	logger  *slog.Logger
	// Context handed to onState; request contexts end with the request.
	ctx context.Context
}

// NewPushHandler returns a handler calling onState for every pushed state.
// onState runs on the request goroutine and should not block.
func NewPushHandler(ctx context.Context, onState StateFunc, grabs GrabLister, logger *slog.Logger) *PushHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushHandler{onState: onState, grabs: grabs, logger: logger, ctx: ctx}
}

// Router builds the gin engine serving the push API.
func (h *PushHandler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(config))

	api := router.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/grabs", h.ListGrabs)
		api.POST("/state", h.ReceiveState)
	}
	return router
}

func (h *PushHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *PushHandler) ListGrabs(c *gin.Context) {
	grabs := []string{}
	if h.grabs != nil {
		grabs = append(grabs, h.grabs.InFlight()...)
	}
	c.JSON(http.StatusOK, gin.H{"grabs": grabs})
}

// ReceiveState accepts a pushed state. Notifications for other items
// (queue, volume) are acknowledged and ignored.
func (h *PushHandler) ReceiveState(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxStateBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is not valid JSON"})
		return
	}
	s, err := ParseState(body)
	if err != nil {
		h.logger.Debug("ignored push notification", "error", err)
		c.JSON(http.StatusAccepted, gin.H{"accepted": false, "reason": err.Error()})
		return
	}
	h.onState(h.ctx, s)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}
