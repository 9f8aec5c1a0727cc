package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"zkpay/internal/client/ledger"
	"zkpay/internal/service"
	"zkpay/internal/trade"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Accepted answers requests whose work continues in the background.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, apiResponse{
		Code:    0,
		Message: "accepted",
		Data:    data,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// ErrorFrom maps a domain error to its HTTP status.
func ErrorFrom(c *gin.Context, err error, meta map[string]any) {
	Error(c, statusFor(err), err.Error(), meta)
}

func statusFor(err error) int {
	var apiErr *ledger.APIError
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrTradeNotFound):
		return http.StatusNotFound
	case errors.Is(err, trade.ErrInvalidReceipt), errors.Is(err, service.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, trade.ErrInvalidTransition), errors.Is(err, trade.ErrTerminal),
		errors.Is(err, trade.ErrExpired), errors.Is(err, service.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, service.ErrCreationSyncTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
