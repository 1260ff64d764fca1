package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	reconciledomain "github.com/communityhq/billingcore/internal/reconcile/domain"
)

func (s *Server) AnalyzeConflicts(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.reconcileSvc.Analyze(c.Request.Context(), slug, caller)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ResolveConflicts requires the action in the body; there is no default
// because both repairs are destructive.
func (s *Server) ResolveConflicts(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.reconcileSvc.Resolve(c.Request.Context(), slug, caller, reconciledomain.Action(strings.TrimSpace(req.Action)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if len(resp.Errors) > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"data": resp})
}
