package paas

import (
	"github.com/gin-gonic/gin"
)

const ginClientKey = "paas.client"

func InjectClientMiddleware(p *Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p.Enabled() {
			c.Set(ginClientKey, p)
		}
		c.Next()
	}
}

func ClientFromGin(c *gin.Context) *Client {
	if c == nil {
		return nil
	}
	v, ok := c.Get(ginClientKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Client)
	return p
}

// LogBestEffort forwards an audit entry for the current request, if a client
// was injected.
func LogBestEffort(c *gin.Context, action, level string, details map[string]any) {
	p := ClientFromGin(c)
	if p == nil {
		return
	}
	_ = p.Forward(c.Request.Context(), action, level, details)
}
