package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the authenticated user id, set by the edge proxy
	// after session validation. An empty header means an anonymous caller.
	HeaderUserID = "X-User-Id"

	contextUserIDKey = "user_id"
)

// CallerContext parses the user header once per request. It never rejects:
// anonymous access is legal for the public status read, and handlers that
// need an identity call requireCaller themselves.
func CallerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw != "" {
			if id, err := snowflake.ParseString(raw); err == nil {
				c.Set(contextUserIDKey, id)
			}
		}
		c.Next()
	}
}

func callerID(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextUserIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

// requireCaller aborts with 401 when no valid user header was presented.
func requireCaller(c *gin.Context) (snowflake.ID, bool) {
	id := callerID(c)
	if id == 0 {
		AbortWithError(c, ErrUnauthorized)
		return 0, false
	}
	return id, true
}
