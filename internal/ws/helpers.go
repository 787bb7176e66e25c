package ws

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gin-gonic/gin"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// bearerToken extracts the token from the Authorization header or, for
// browser websocket clients that cannot set headers, the token query
// parameter.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		return header
	}
	if token := c.Query("token"); token != "" {
		return "Bearer " + token
	}
	return ""
}
