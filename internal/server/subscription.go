package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	subscriptiondomain "github.com/communityhq/billingcore/internal/subscription/domain"
)

func (s *Server) VerifyPayment(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req subscriptiondomain.VerifyAndActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.AdminID = caller

	resp, err := s.subscriptionSvc.VerifyAndActivate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
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
		CancelAtCycleEnd bool `json:"cancel_at_cycle_end"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		CommunitySlug:    slug,
		CallerID:         caller,
		CancelAtCycleEnd: req.CancelAtCycleEnd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptionEvents(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	events, err := s.subscriptionSvc.History(c.Request.Context(), slug, caller)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) ListTransactions(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	slug := strings.TrimSpace(c.Param("slug"))
	if slug == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	community, err := s.communitySvc.Get(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !community.IsAdmin(caller) {
		AbortWithError(c, ErrForbidden)
		return
	}

	transactions, err := s.txnRepo.ListByCommunity(c.Request.Context(), s.db, community.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": transactions})
}
