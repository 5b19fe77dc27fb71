// Package handler はHTTPとWebSocketのエンドポイントを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/albumview/internal/browse"
	"github.com/hitoshi/albumview/internal/middleware"
	"github.com/hitoshi/albumview/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Entries           browse.Entries
	Logger            *slog.Logger
	CORSAllowedOrigin string

	// RateLimiterがnilの場合はレート制限を行わない。
	RateLimiter *middleware.RateLimiter

	// MetricsHandlerがnilの場合は/metricsを公開しない。
	MetricsHandler http.Handler

	// SessionsContextがキャンセルされると、接続中のWebSocketセッションを終了する。
	SessionsContext context.Context
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → RateLimit(/api, /ws)
//
// /healthと/metricsはレート制限の対象外とする。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	browseHandler := NewBrowseHandler(deps.Entries, logger)
	sessionHandler := NewSessionHandler(deps.Entries, deps.CORSAllowedOrigin, logger)
	sessionHandler.closing = deps.SessionsContext

	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/api", func(r chi.Router) {
			r.Get("/accounts", browseHandler.ListAccounts)
			r.Get("/accounts/{id}/collections", browseHandler.ListCollections)
			r.Get("/collections/{id}/items", browseHandler.ListItems)
			r.Get("/items/{id}", browseHandler.GetItem)
		})

		r.Method(http.MethodGet, "/ws", sessionHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "ROUTE_NOT_FOUND",
			Message:  "指定されたパスは存在しません。",
			Category: "validation",
			Action:   "URLを確認してください。",
		})
	})

	return r
}
