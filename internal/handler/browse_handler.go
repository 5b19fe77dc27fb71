package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/albumview/internal/browse"
	"github.com/hitoshi/albumview/internal/middleware"
	"github.com/hitoshi/albumview/internal/model"
)

// BrowseHandler は4つの画面のビューモデルをJSONで返すHTTPハンドラー。
type BrowseHandler struct {
	entries browse.Entries
	logger  *slog.Logger
}

// NewBrowseHandler はBrowseHandlerを生成する。
func NewBrowseHandler(entries browse.Entries, logger *slog.Logger) *BrowseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowseHandler{entries: entries, logger: logger}
}

// ListAccounts はアカウント一覧画面のビューモデルを返す。
// GET /api/accounts
func (h *BrowseHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	vm, err := h.entries.EnterAccountList(r.Context())
	if err != nil {
		handleBrowseError(w, r, h.logger, err, "ユーザー", 0)
		return
	}
	writeJSON(w, vm)
}

// ListCollections はアカウント配下のコレクション一覧画面のビューモデルを返す。
// GET /api/accounts/{id}/collections
func (h *BrowseHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	vm, err := h.entries.EnterCollectionList(r.Context(), id)
	if err != nil {
		handleBrowseError(w, r, h.logger, err, "ユーザー", id)
		return
	}
	writeJSON(w, vm)
}

// ListItems はコレクション内のアイテム一覧画面のビューモデルを返す。
// GET /api/collections/{id}/items
func (h *BrowseHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	vm, err := h.entries.EnterItemList(r.Context(), id)
	if err != nil {
		handleBrowseError(w, r, h.logger, err, "アルバム", id)
		return
	}
	writeJSON(w, vm)
}

// GetItem はアイテム詳細画面のビューモデルを返す。
// GET /api/items/{id}
func (h *BrowseHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	vm, err := h.entries.EnterItemDetail(r.Context(), id)
	if err != nil {
		handleBrowseError(w, r, h.logger, err, "写真", id)
		return
	}
	writeJSON(w, vm)
}

// parseID はURLパラメータのIDを正の整数として解釈する。
// 不正な場合は400を書き込んでfalseを返す。
func parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidIDError(raw))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
