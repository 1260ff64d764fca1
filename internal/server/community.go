package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	communitydomain "github.com/communityhq/billingcore/internal/community/domain"
)

func (s *Server) CreateCommunity(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req struct {
		Name       string `json:"name"`
		AdminEmail string `json:"admin_email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.communitySvc.Create(c.Request.Context(), communitydomain.CreateCommunityRequest{
		Name:       strings.TrimSpace(req.Name),
		AdminEmail: strings.TrimSpace(req.AdminEmail),
		AdminID:    caller,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// GetBillingStatus serves anonymous callers too; they only see the public
// access fields.
func (s *Server) GetBillingStatus(c *gin.Context) {
	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.communitySvc.GetStatus(c.Request.Context(), slug, callerID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) StartTrial(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.communitySvc.StartTrial(c.Request.Context(), slug, caller)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
