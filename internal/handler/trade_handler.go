package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dhcommerce/internal/trade"
)

// TradeHistoryService は取引履歴ハンドラーが必要とするサービスインターフェース。
type TradeHistoryService interface {
	History(ctx context.Context, userID string) ([]trade.HistoryEntry, error)
}

// TradeHandler は取引履歴のHTTPハンドラー。
type TradeHandler struct {
	service TradeHistoryService
}

// NewTradeHandler はTradeHandlerを生成する。
func NewTradeHandler(service TradeHistoryService) *TradeHandler {
	return &TradeHandler{service: service}
}

type tradeHistoryResponse struct {
	Success bool                 `json:"success"`
	Count   int                  `json:"count"`
	History []trade.HistoryEntry `json:"history"`
}

// History はユーザーの取引履歴を新しい順に返す。
// GET /api/trade-history/{userId}
func (h *TradeHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.History(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeHistoryResponse{Success: true, Count: len(entries), History: entries})
}
