package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/LingByte/EchoClass/pkg/classroom"
	apperrors "github.com/LingByte/EchoClass/pkg/errors"
	"github.com/LingByte/EchoClass/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Rooms is the coordinator surface the REST api needs.
type Rooms interface {
	Room(ctx context.Context, roomID string) (classroom.RoomSnapshot, error)
	Rooms(ctx context.Context) ([]classroom.RoomSnapshot, error)
	RoomIDs() []string
	OnRoomClose(ctx context.Context, roomID, reason string) error
	ResumePlayback(ctx context.Context, roomID string) error
	SetEdgeGain(ctx context.Context, roomID, source, target string, gain float64) error
}

// Signaling is the hub surface the router needs.
type Signaling interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	OpenRoom(ctx context.Context, hostID, roomID string) error
}

type Server struct {
	rooms    Rooms
	hub      Signaling
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	started  time.Time
}

func New(rooms Rooms, hub Signaling, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		rooms:    rooms,
		hub:      hub,
		gatherer: gatherer,
		logger:   logger.Named("http"),
		started:  time.Now(),
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	// Disable automatic redirects to avoid CORS issues caused by 307 redirects
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.GET("/ws", gin.WrapF(s.hub.ServeWS))
	r.GET("/healthz", s.health)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/rooms")
	api.GET("", s.listRooms)
	api.POST("", s.createRoom)
	api.GET("/:id", s.getRoom)
	api.DELETE("/:id", s.closeRoom)
	api.POST("/:id/playback", s.resumePlayback)
	api.PUT("/:id/edges", s.setEdgeGain)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func fail(c *gin.Context, err error) {
	appErr := classroom.ToAppError(err)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"rooms":      len(s.rooms.RoomIDs()),
		"goroutines": runtime.NumGoroutine(),
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		body["memoryUsedPercent"] = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		body["cpuPercent"] = pct[0]
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.rooms.Rooms(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (s *Server) getRoom(c *gin.Context) {
	room, err := s.rooms.Room(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

type createRoomRequest struct {
	RoomID string `json:"roomId" binding:"required"`
	HostID string `json:"hostId"`
}

func (s *Server) createRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.WrapError(apperrors.ErrCodeInvalidInput, err))
		return
	}
	if req.HostID == "" {
		req.HostID = "host-" + utils.NewInstanceID()
	}
	ctx := c.Request.Context()
	if err := s.hub.OpenRoom(ctx, req.HostID, req.RoomID); err != nil {
		fail(c, err)
		return
	}
	room, err := s.rooms.Room(ctx, req.RoomID)
	if err != nil {
		fail(c, err)
		return
	}
	s.logger.Info("room opened over http", zap.String("room_id", req.RoomID), zap.String("host_id", req.HostID))
	c.JSON(http.StatusCreated, room)
}

func (s *Server) closeRoom(c *gin.Context) {
	reason := c.DefaultQuery("reason", "closed by operator")
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.rooms.Room(ctx, id); err != nil {
		fail(c, err)
		return
	}
	if err := s.rooms.OnRoomClose(ctx, id, reason); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) resumePlayback(c *gin.Context) {
	if err := s.rooms.ResumePlayback(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": c.Param("id"), "playback": true})
}

type edgeGainRequest struct {
	Source string   `json:"source" binding:"required"`
	Target string   `json:"target" binding:"required"`
	Gain   *float64 `json:"gain" binding:"required"`
}

func (s *Server) setEdgeGain(c *gin.Context) {
	var req edgeGainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.WrapError(apperrors.ErrCodeInvalidInput, err))
		return
	}
	if err := s.rooms.SetEdgeGain(c.Request.Context(), c.Param("id"), req.Source, req.Target, *req.Gain); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": req.Source, "target": req.Target, "gain": *req.Gain})
}

// Run serves until ctx is cancelled, then shuts the listener down.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
