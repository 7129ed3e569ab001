package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/quoteflow/internal/observability/context"
	"github.com/smallbiznis/quoteflow/internal/ownercontext"
)

// HeaderOwner carries the authenticated owner, set by the upstream gateway.
const HeaderOwner = "X-Owner-ID"

func OwnerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOwner))
		ownerID, err := snowflake.ParseString(raw)
		if raw == "" || err != nil || ownerID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := ownercontext.WithOwnerID(c.Request.Context(), ownerID)
		ctx = obscontext.WithOwnerID(ctx, ownerID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
