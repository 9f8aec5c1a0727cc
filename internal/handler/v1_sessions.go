package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zkpay/internal/client/ledger"
	"zkpay/internal/paas"
	"zkpay/internal/service"
	"zkpay/internal/trade"
)

type SessionsHandler struct {
	Coordinator     *service.Coordinator
	Journal         *service.JournalService
	MaxReceiptBytes int64
	Logger          *zap.Logger
}

func (h *SessionsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/sessions")
	g.POST("", h.open)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.close)
	g.GET("/:id/events", h.events)
	g.POST("/:id/trades/:trade_id/receipt", h.receipt)
	g.POST("/:id/trades/:trade_id/retry", h.retry)
	g.POST("/:id/trades/:trade_id/resume-proof", h.resumeProof)
}

type openSessionRequest struct {
	Buyer    string        `json:"buyer"`
	Fills    []ledger.Fill `json:"fills"`
	TradeIDs []string      `json:"trade_ids"`
}

// @Summary Open a session
// @Description Creates escrow trades for a match plan (fills) or attaches to existing trades (trade_ids), then waits until the ledger shows every trade.
// @Tags sessions
// @Accept json
// @Produce json
// @Param body body openSessionRequest true "match plan or trade ids"
// @Success 200 {object} service.SessionSnapshot
// @Failure 400 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Failure 504 {object} apiResponse "meta.trade_ids lists the created trades to attach to later"
// @Router /api/v1/sessions [post]
func (h *SessionsHandler) open(c *gin.Context) {
	if h.Coordinator == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return
	}
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid json body", nil)
		return
	}
	hasFills, hasIDs := len(req.Fills) > 0, len(req.TradeIDs) > 0
	if hasFills == hasIDs {
		Error(c, http.StatusBadRequest, "exactly one of fills or trade_ids is required", nil)
		return
	}

	var (
		s   *service.Session
		err error
	)
	if hasFills {
		if strings.TrimSpace(req.Buyer) == "" {
			Error(c, http.StatusBadRequest, "buyer is required with fills", nil)
			return
		}
		for _, f := range req.Fills {
			if strings.TrimSpace(f.OrderID) == "" || !f.TokenAmount.IsPositive() {
				Error(c, http.StatusBadRequest, "every fill needs order_id and a positive token_amount", nil)
				return
			}
		}
		s, err = h.Coordinator.Open(c.Request.Context(), service.OpenRequest{Buyer: req.Buyer, Fills: req.Fills})
	} else {
		s, err = h.Coordinator.Attach(c.Request.Context(), req.TradeIDs)
	}
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("open session failed", zap.Error(err))
		}
		var syncErr *service.CreationSyncError
		if errors.As(err, &syncErr) {
			paas.LogBestEffort(c, "zkpay_creation_sync_timeout", "warn", map[string]any{
				"trade_ids": syncErr.TradeIDs,
				"missing":   syncErr.Missing,
			})
			// The trades exist on-chain; the caller attaches to these ids later
			// instead of creating them again.
			ErrorFrom(c, err, map[string]any{"trade_ids": syncErr.TradeIDs, "missing": syncErr.Missing})
			return
		}
		ErrorFrom(c, err, nil)
		return
	}
	Ok(c, s.Snapshot(), nil)
}

// @Summary Session snapshot
// @Tags sessions
// @Produce json
// @Param id path string true "session id"
// @Success 200 {object} service.SessionSnapshot
// @Failure 404 {object} apiResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionsHandler) get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	Ok(c, s.Snapshot(), nil)
}

// @Summary Discard a session
// @Tags sessions
// @Param id path string true "session id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionsHandler) close(c *gin.Context) {
	if err := h.Coordinator.Close(c.Param("id")); err != nil {
		ErrorFrom(c, err, nil)
		return
	}
	Ok(c, gin.H{"id": c.Param("id")}, nil)
}

// @Summary Session journal
// @Tags sessions
// @Produce json
// @Param id path string true "session id"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {array} models.TradeEvent
// @Router /api/v1/sessions/{id}/events [get]
func (h *SessionsHandler) events(c *gin.Context) {
	limit := intQuery(c, "limit", 200)
	offset := intQuery(c, "offset", 0)
	items, err := h.Journal.List(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, len(items)))
}

// @Summary Upload a payment receipt
// @Description Checks the file locally, then uploads, validates, proves and submits it in the background.
// @Tags trades
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "session id"
// @Param trade_id path string true "trade id"
// @Param file formData file true "receipt PDF"
// @Success 202 {object} service.TradeView
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/sessions/{id}/trades/{trade_id}/receipt [post]
func (h *SessionsHandler) receipt(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	r, err := h.readReceipt(c)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	tradeID := c.Param("trade_id")
	if err := s.SubmitReceipt(tradeID, r); err != nil {
		ErrorFrom(c, err, tradeMeta(s, tradeID))
		return
	}
	Accepted(c, tradeView(s, tradeID))
}

// @Summary Reset a failed trade
// @Tags trades
// @Param id path string true "session id"
// @Param trade_id path string true "trade id"
// @Success 200 {object} service.TradeView
// @Failure 409 {object} apiResponse
// @Router /api/v1/sessions/{id}/trades/{trade_id}/retry [post]
func (h *SessionsHandler) retry(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	tradeID := c.Param("trade_id")
	if err := s.Retry(tradeID); err != nil {
		ErrorFrom(c, err, tradeMeta(s, tradeID))
		return
	}
	Ok(c, tradeView(s, tradeID), nil)
}

// @Summary Resume proof generation
// @Description Restarts proof generation for an accepted receipt without uploading it again.
// @Tags trades
// @Param id path string true "session id"
// @Param trade_id path string true "trade id"
// @Success 202 {object} service.TradeView
// @Failure 409 {object} apiResponse
// @Router /api/v1/sessions/{id}/trades/{trade_id}/resume-proof [post]
func (h *SessionsHandler) resumeProof(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	tradeID := c.Param("trade_id")
	if err := s.ResumeProof(tradeID); err != nil {
		ErrorFrom(c, err, tradeMeta(s, tradeID))
		return
	}
	Accepted(c, tradeView(s, tradeID))
}

func (h *SessionsHandler) session(c *gin.Context) (*service.Session, bool) {
	if h.Coordinator == nil {
		Error(c, http.StatusInternalServerError, "coordinator unavailable", nil)
		return nil, false
	}
	s, err := h.Coordinator.Get(c.Param("id"))
	if err != nil {
		ErrorFrom(c, err, nil)
		return nil, false
	}
	return s, true
}

// readReceipt reads the multipart file. A missing file is passed on empty so
// the gate reports it on the trade like any other input error. Reading stops
// one byte past the limit so oversize files still fail the gate.
func (h *SessionsHandler) readReceipt(c *gin.Context) (trade.Receipt, error) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return trade.Receipt{}, nil
	}
	if err != nil {
		return trade.Receipt{}, fmt.Errorf("invalid multipart body: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return trade.Receipt{}, err
	}
	defer func() { _ = f.Close() }()
	limit := h.MaxReceiptBytes
	if limit <= 0 {
		limit = trade.DefaultMaxReceiptBytes
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return trade.Receipt{}, err
	}
	return trade.Receipt{Filename: fh.Filename, Data: data}, nil
}

func tradeView(s *service.Session, tradeID string) *service.TradeView {
	for _, v := range s.Snapshot().Trades {
		if v.TradeID == tradeID {
			return &v
		}
	}
	return nil
}

func tradeMeta(s *service.Session, tradeID string) map[string]any {
	v := tradeView(s, tradeID)
	if v == nil {
		return nil
	}
	return map[string]any{"trade": v}
}
