package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumlabs/council/pkg/store"
)

func (s *Server) createConversationHandler(c *gin.Context) {
	conv, err := s.store.CreateConversation()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("failed to create conversation", err))
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) listConversationsHandler(c *gin.Context) {
	convs, err := s.store.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("failed to list conversations", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) listDeletedHandler(c *gin.Context) {
	convs, err := s.store.ListDeleted()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse("failed to list deleted conversations", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) getConversationHandler(c *gin.Context) {
	conv, err := s.store.Get(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) deleteConversationHandler(c *gin.Context) {
	if err := s.store.SoftDelete(c.Param("id")); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) restoreConversationHandler(c *gin.Context) {
	if err := s.store.Restore(c.Param("id")); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

func (s *Server) hardDeleteConversationHandler(c *gin.Context) {
	if err := s.store.HardDelete(c.Param("id")); err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "permanently_deleted"})
}

// storeError maps store errors to HTTP responses.
func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse("conversation not found", err))
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse("storage error", err))
}

func errorResponse(msg string, err error) gin.H {
	return gin.H{"error": msg, "detail": err.Error()}
}
