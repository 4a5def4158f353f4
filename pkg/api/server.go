// Package api provides the HTTP surface: conversation management, message
// submission (blocking and streaming), and the push-subscription endpoint.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumlabs/council/pkg/config"
	"github.com/quorumlabs/council/pkg/deliberation"
	"github.com/quorumlabs/council/pkg/events"
	"github.com/quorumlabs/council/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	cfg         *config.Config
	store       *store.FileStore
	controller  *deliberation.Controller
	connManager *events.ConnectionManager
	broker      *events.Broker
}

// NewServer creates the API server and registers all routes.
func NewServer(
	cfg *config.Config,
	st *store.FileStore,
	controller *deliberation.Controller,
	connManager *events.ConnectionManager,
	broker *events.Broker,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:      router,
		cfg:         cfg,
		store:       st,
		controller:  controller,
		connManager: connManager,
		broker:      broker,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api")
	api.POST("/conversations", s.createConversationHandler)
	api.GET("/conversations", s.listConversationsHandler)
	api.GET("/conversations/deleted", s.listDeletedHandler)
	api.GET("/conversations/:id", s.getConversationHandler)
	api.DELETE("/conversations/:id", s.deleteConversationHandler)
	api.POST("/conversations/:id/restore", s.restoreConversationHandler)
	api.DELETE("/conversations/:id/permanent", s.hardDeleteConversationHandler)

	api.POST("/conversations/:id/messages", s.sendMessageHandler)
	api.POST("/conversations/:id/messages/stream", s.streamMessageHandler)

	s.router.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
