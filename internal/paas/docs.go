package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# zkpay trade orchestrator

Drives the buyer side of ZK-verified fiat settlements: receipt upload,
validation, proof generation, serialized proof submission and settlement
confirmation for every trade of a matched order.

## Auth

All /api/* routes require a Bearer token (validated by the PaaS gateway).
Health endpoints are public.

## Routes

- GET /healthz
- GET /readyz
- GET /swagger/index.html
- POST /api/v1/sessions
- GET /api/v1/sessions/:id
- DELETE /api/v1/sessions/:id
- POST /api/v1/sessions/:id/trades/:trade_id/receipt
- POST /api/v1/sessions/:id/trades/:trade_id/retry
- POST /api/v1/sessions/:id/trades/:trade_id/resume-proof
- GET /api/v1/sessions/:id/events
- GET /api/v1/sessions/:id/stream (websocket)
`)
	})
}
