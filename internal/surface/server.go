// Package surface exposes the remote's controls over a local HTTP API and
// streams view updates over WebSocket.
package surface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/control"
)

// Server is the local control surface.
type Server struct {
	addr           string
	ctl            *control.Controller
	hub            *Hub
	allowedOrigins []string
	httpServer     *http.Server
}

// NewServer creates a new control surface server.
func NewServer(host string, port int, ctl *control.Controller, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		addr: fmt.Sprintf("%s:%d", host, port),
		ctl:  ctl.WithSource("surface"),
		hub:  hub,
	}
}

// AllowOrigins lets pages from origins other than the surface's own host
// open the WebSocket stream. "*" allows any origin.
func (s *Server) AllowOrigins(origins ...string) {
	s.allowedOrigins = append(s.allowedOrigins, origins...)
}

// Hub returns the WebSocket hub fed by the event bus.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/ws", s.wsConnect)

	api := router.Group("/api")
	{
		api.GET("/view", s.getView)
		api.POST("/refresh", s.refresh)
		api.POST("/mode", s.setMode)
		api.POST("/program", s.setProgram)
		api.POST("/speed", s.setSpeed)
		api.GET("/speed/preview", s.previewSpeed)
		api.POST("/brightness", s.setBrightness)
		api.POST("/countdown", s.countdown)
		api.GET("/commands", s.commands)
	}

	sched := api.Group("/schedule")
	{
		sched.POST("/blocks", s.addBlock)
		sched.DELETE("/blocks/:index", s.removeBlock)
		sched.POST("/blocks/:index/toggle", s.toggleBlock)
		sched.PUT("/blocks/:index/time", s.setBlockTime)
		sched.POST("/blocks/:index/days/:day", s.toggleBlockDay)
		sched.POST("/save", s.saveSchedule)
		sched.POST("/discard", s.discardSchedule)
	}

	return router
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting control surface")

	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control surface shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Surface request")
	}
}
