package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumlabs/council/pkg/deliberation"
	"github.com/quorumlabs/council/pkg/store"
	"github.com/quorumlabs/council/pkg/stream"
)

// SendMessageRequest is the body of both message submission endpoints.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// sendMessageHandler runs a full deliberation and responds with the
// assistant message once it completes (blocking mode). The event stream is
// drained internally.
func (s *Server) sendMessageHandler(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body", err))
		return
	}

	mux := stream.NewMux(s.cfg.Server.EventBuffer)
	// Blocking mode still needs a consumer or token emission would stall.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range mux.Events() {
		}
	}()

	assistant, err := s.controller.Run(c.Request.Context(), c.Param("id"), req.Content, mux)
	<-done
	if err != nil {
		s.deliberationError(c, err)
		return
	}
	c.JSON(http.StatusOK, assistant)
}

// streamMessageHandler runs a deliberation and streams the multiplexer's
// events as server-sent events, terminated by [DONE]. Client disconnect
// cancels the request context, which aborts all in-flight model calls.
func (s *Server) streamMessageHandler(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid request body", err))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, errorResponse("streaming not supported", fmt.Errorf("response writer cannot flush")))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	mux := stream.NewMux(s.cfg.Server.EventBuffer)
	go func() {
		_, _ = s.controller.Run(c.Request.Context(), c.Param("id"), req.Content, mux)
	}()

	for ev := range mux.Events() {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			// Client went away; the request context cancellation stops the run.
			return
		}
		flusher.Flush()
	}

	_, _ = fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) deliberationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse("conversation not found", err))
	case errors.Is(err, deliberation.ErrInsufficientCouncil):
		c.JSON(http.StatusBadGateway, errorResponse("insufficient council", err))
	case errors.Is(err, context.Canceled):
		// Client is gone; nothing useful to write.
	default:
		c.JSON(http.StatusBadGateway, errorResponse("deliberation failed", err))
	}
}
