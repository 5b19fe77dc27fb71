package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/albumview/internal/middleware"
	"github.com/hitoshi/albumview/internal/model"
)

// resolveError はブラウズ操作のエラーをHTTPステータスと統一エラーに変換する。
// resourceとidは上流の404を利用者向けのメッセージにするために使う。
//
//	APIError(INVALID_ID, UNKNOWN_VIEW, NO_BACK, INVALID_MESSAGE) → 400
//	上流404                                                       → 404
//	期限切れ（context.DeadlineExceeded）                           → 504
//	その他の上流エラー                                              → 502
//	それ以外                                                       → 500
func resolveError(err error, resource string, id int) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr), apiErr
	}
	if model.IsNotFound(err) {
		return http.StatusNotFound, model.NewNotFoundError(resource, id)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, model.NewUpstreamFailedError()
	}
	if model.IsTransportError(err) {
		return http.StatusBadGateway, model.NewUpstreamFailedError()
	}
	return http.StatusInternalServerError, nil
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidID, model.ErrCodeUnknownView, model.ErrCodeNoBack, model.ErrCodeInvalidMessage:
		return http.StatusBadRequest
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleBrowseError はブラウズ操作のエラーをログに記録し、統一フォーマットで応答する。
func handleBrowseError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, resource string, id int) {
	status, apiErr := resolveError(err, resource, id)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "ビューモデルの生成に失敗しました",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)

	if apiErr == nil {
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteErrorResponse(w, status, apiErr)
}
