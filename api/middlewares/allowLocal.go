package middlewares

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OnlyAllowLocal rejects requests whose socket peer is not a loopback address.
func OnlyAllowLocal(c *gin.Context) {
	if ip := net.ParseIP(c.ClientIP()); ip != nil && ip.IsLoopback() {
		c.Next()
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
}
