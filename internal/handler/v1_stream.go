package handler

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"zkpay/internal/service"
)

// StreamHandler pushes session snapshots over a websocket: one on connect,
// one after every change and one per interval so countdowns stay live.
type StreamHandler struct {
	Coordinator    *service.Coordinator
	Interval       time.Duration
	OriginPatterns []string
	Logger         *zap.Logger
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/sessions/:id/stream", h.stream)
}

// @Summary Stream session snapshots
// @Description Websocket. Sends a service.SessionSnapshot on connect, after every trade transition and once per second.
// @Tags sessions
// @Param id path string true "session id"
// @Success 101
// @Failure 404 {object} apiResponse
// @Router /api/v1/sessions/{id}/stream [get]
func (h *StreamHandler) stream(c *gin.Context) {
	if h.Coordinator == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return
	}
	s, err := h.Coordinator.Get(c.Param("id"))
	if err != nil {
		ErrorFrom(c, err, nil)
		return
	}
	conn, err := websocket.Accept(newUpgradeWriter(c.Writer), c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer func() { _ = conn.CloseNow() }()

	// The client never sends anything we need; CloseRead handles control frames.
	ctx := conn.CloseRead(c.Request.Context())
	updates, stop := s.Subscribe()
	defer stop()

	interval := h.Interval
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	if err := h.send(ctx, conn, s.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := h.send(ctx, conn, snap); err != nil {
				return
			}
		case <-t.C:
			if err := h.send(ctx, conn, s.Snapshot()); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) send(ctx context.Context, conn *websocket.Conn, snap service.SessionSnapshot) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := wsjson.Write(wctx, conn, snap)
	if err != nil && h.Logger != nil {
		h.Logger.Debug("websocket write failed", zap.String("session_id", snap.ID), zap.Error(err))
	}
	return err
}

// upgradeWriter hides gin's WriteHeaderNow from the websocket handshake. gin
// refuses to hijack once it has flushed headers, so the 101 status goes to the
// server's own writer, which flushes it when the connection is hijacked.
type upgradeWriter struct {
	gw  gin.ResponseWriter
	raw http.ResponseWriter
}

func newUpgradeWriter(gw gin.ResponseWriter) *upgradeWriter {
	u := &upgradeWriter{gw: gw, raw: gw}
	if uw, ok := gw.(interface{ Unwrap() http.ResponseWriter }); ok {
		u.raw = uw.Unwrap()
	}
	return u
}

func (u *upgradeWriter) Header() http.Header { return u.gw.Header() }

func (u *upgradeWriter) Write(b []byte) (int, error) { return u.gw.Write(b) }

func (u *upgradeWriter) WriteHeader(code int) {
	if code == http.StatusSwitchingProtocols {
		u.raw.WriteHeader(code)
		return
	}
	u.gw.WriteHeader(code)
}

func (u *upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return u.gw.Hijack()
}
