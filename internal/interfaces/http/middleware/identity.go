package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentmarket/backend/internal/interfaces/http/dto"
)

// BuyerIDHeader carries the caller's buyer identity. The gateway in
// front of this service authenticates the caller and stamps the header.
const BuyerIDHeader = "X-Buyer-ID"

// BuyerIDKey is the gin context key holding the validated buyer ID
const BuyerIDKey = "buyer_id"

// BuyerIdentity validates the buyer header and stores it in the
// request context. Routes behind it can rely on GetBuyerID returning a
// valid UUID.
func BuyerIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(BuyerIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized,
				"Missing "+BuyerIDHeader+" header",
			))
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeBadRequest,
				"Invalid "+BuyerIDHeader+" header",
			))
			return
		}

		c.Set(BuyerIDKey, id.String())
		c.Next()
	}
}

// GetBuyerID returns the buyer ID set by BuyerIdentity, or uuid.Nil
// when the middleware did not run
func GetBuyerID(c *gin.Context) uuid.UUID {
	raw := c.GetString(BuyerIDKey)
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
