package middleware

import (
	"github.com/gin-gonic/gin"

	"marketsim.com/pkg/common"
	"marketsim.com/pkg/logger"
)

// ReqId 透传或生成 request id，同时作为 trace id 写进 request context
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" {
			rid = common.NewRequestID()
		}
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		c.Request = c.Request.WithContext(logger.WithTrace(c.Request.Context(), rid))
		c.Next()
	}
}
