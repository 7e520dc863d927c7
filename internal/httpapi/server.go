package httpapi

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestrelmedia/recordplay/internal/dispatcher"
	"github.com/kestrelmedia/recordplay/internal/logger"
	"github.com/kestrelmedia/recordplay/internal/plugin"
)

// pollTimeout bounds how long GET /sessions/:id/events waits for the next
// notifier event before replying 204, so a client's poll loop always gets
// control back periodically instead of hanging forever.
const pollTimeout = 30 * time.Second

// Server is the demo HTTP host: it owns the gin.Engine, the plugin.Engine
// it routes requests into, and the Dispatcher that turns raw JSON bodies
// into Handler calls, mirroring the one-router-one-group shape of the
// teacher's internal/api.API.
type Server struct {
	Address string
	Engine  *plugin.Engine
	Logger  logger.Writer

	notifier   *notifier
	dispatcher *dispatcher.Dispatcher
	httpServer *http.Server
}

// Initialize builds the router and starts listening.
func (s *Server) Initialize() error {
	s.notifier = newNotifier()
	s.dispatcher = dispatcher.New(s.Engine, s.notifier, 256, s.Logger)
	s.Engine.SetNotifier(s.notifier)

	router := gin.New()
	router.Use(gin.Recovery())

	group := router.Group("/v1")
	group.POST("/sessions", s.onCreateSession)
	group.DELETE("/sessions/:id", s.onDeleteSession)
	group.POST("/sessions/:id/requests", s.onRequest)
	group.GET("/sessions/:id/events", s.onPollEvents)

	s.httpServer = &http.Server{
		Addr:    s.Address,
		Handler: router,
	}

	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.Logger.Log(logger.Error, "httpapi: serve: %s", err)
		}
	}()

	s.Logger.Log(logger.Info, "listener opened on %s", s.Address)
	return nil
}

// Close stops the HTTP listener and the dispatcher worker.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx) //nolint:errcheck
	s.dispatcher.Close()
}

func (s *Server) onCreateSession(ctx *gin.Context) {
	id := s.Engine.CreateSession()
	s.notifier.register(id)
	ctx.JSON(http.StatusOK, gin.H{"id": id})
}

func (s *Server) onDeleteSession(ctx *gin.Context) {
	id := ctx.Param("id")
	s.Engine.HangUp(id)
	s.notifier.forget(id)
	ctx.Status(http.StatusNoContent)
}

func (s *Server) onRequest(ctx *gin.Context) {
	id := ctx.Param("id")

	raw, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, s.dispatcher.Dispatch(id, raw))
}

func (s *Server) onPollEvents(ctx *gin.Context) {
	id := ctx.Param("id")

	s.notifier.mu.Lock()
	q, ok := s.notifier.queues[id]
	s.notifier.mu.Unlock()
	if !ok {
		ctx.Status(http.StatusNotFound)
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx.Request.Context(), pollTimeout)
	defer cancel()

	event, ok := q.pop(pollCtx)
	if !ok {
		ctx.Status(http.StatusNoContent)
		return
	}
	ctx.JSON(http.StatusOK, event)
}
