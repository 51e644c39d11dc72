package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/moyoez/imagerestore/api/controllers"
	"github.com/moyoez/imagerestore/api/middlewares"
	"github.com/moyoez/imagerestore/api/models"
	"github.com/moyoez/imagerestore/api/notifyhub"
	"github.com/moyoez/imagerestore/tool"
	"github.com/moyoez/imagerestore/transfer"
)

// Server is the local control API for restore sessions.
type Server struct {
	listen       string
	engine       *transfer.Engine
	startLimiter *rate.Limiter
	router       *gin.Engine
	server       *http.Server
	mu           sync.RWMutex
}

// NewServer creates a server bound to listen. startInterval spaces out start
// requests; zero disables the limit.
func NewServer(listen string, engine *transfer.Engine, startInterval time.Duration) *Server {
	s := &Server{
		listen: listen,
		engine: engine,
	}
	if startInterval > 0 {
		s.startLimiter = rate.NewLimiter(rate.Every(startInterval), 1)
	}
	return s
}

// EnableNotifyWS creates the websocket hub that sessions broadcast to.
func EnableNotifyWS() *notifyhub.Hub {
	hub := notifyhub.New()
	models.SetNotifyHub(hub)
	return hub
}

func (s *Server) setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	// ClientIP must come from the socket, never from a forwarded header
	_ = engine.SetTrustedProxies(nil)

	restoreCtrl := controllers.NewRestoreController(s.engine)

	v1 := engine.Group("/api/restore/v1", middlewares.OnlyAllowLocal)
	{
		v1.POST("/start", middlewares.RateLimit(s.startLimiter), restoreCtrl.HandleStart) // Preflight and start a session
		v1.POST("/cancel", restoreCtrl.HandleCancel)                                      // Cancel a running session
		v1.GET("/status", restoreCtrl.HandleStatus)                                       // One session, or all without sessionId
		v1.GET("/preflight", restoreCtrl.HandlePreflight)                                 // Size check only
		v1.GET("/config", controllers.HandleConfig)
		if hub := models.GetNotifyHub(); hub != nil {
			v1.GET("/notify-ws", notifyhub.HandleNotifyWS(hub))
		}
	}
	return engine
}

// Handler returns the router, building it on first use.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.router == nil {
		s.router = s.setupRoutes()
	}
	return s.router
}

// Start serves until Shutdown; it returns http.ErrServerClosed after a clean stop.
func (s *Server) Start() error {
	handler := s.Handler()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("[Server] Starting API server on http://%s", s.listen)
	return srv.ListenAndServe()
}

// Shutdown stops accepting requests and cancels running sessions, waiting for
// their recovery to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	for _, h := range models.CancelAllSessions() {
		select {
		case <-h.Done():
		case <-ctx.Done():
			tool.DefaultLogger.Warnf("[Server] session %s still recovering at shutdown", h.Id())
			return ctx.Err()
		}
	}
	return err
}
