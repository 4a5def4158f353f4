package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quorumlabs/council/pkg/version"
)

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status            string   `json:"status"`
	Version           string   `json:"version"`
	Chairman          string   `json:"chairman"`
	CouncilMembers    []string `json:"council_members"`
	Rounds            int      `json:"rounds"`
	CrossReview       bool     `json:"cross_review"`
	TitlesEnabled     bool     `json:"titles_enabled"`
	ActiveConnections int      `json:"active_ws_connections"`
	PushSubscribers   int      `json:"push_subscribers"`
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, &HealthResponse{
		Status:            "healthy",
		Version:           version.Full(),
		Chairman:          s.cfg.Models.Chairman.Name,
		CouncilMembers:    s.cfg.CouncilModelNames(),
		Rounds:            s.cfg.Deliberation.Rounds,
		CrossReview:       s.cfg.Deliberation.CrossReviewEnabled(),
		TitlesEnabled:     s.cfg.Titles.TitlesEnabled(),
		ActiveConnections: s.connManager.ActiveConnections(),
		PushSubscribers:   s.broker.SubscriberCount(),
	})
}
