// Package app は設定の読み込みから依存関係のワイヤリング、サーバーの起動までを担う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/albumview/internal/browse"
	"github.com/hitoshi/albumview/internal/bulk"
	"github.com/hitoshi/albumview/internal/cache"
	"github.com/hitoshi/albumview/internal/config"
	"github.com/hitoshi/albumview/internal/handler"
	"github.com/hitoshi/albumview/internal/logger"
	"github.com/hitoshi/albumview/internal/metrics"
	"github.com/hitoshi/albumview/internal/middleware"
	"github.com/hitoshi/albumview/internal/model"
	"github.com/hitoshi/albumview/internal/security"
	"github.com/hitoshi/albumview/internal/selector"
	"github.com/hitoshi/albumview/internal/transport"
	"github.com/hitoshi/albumview/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数（とALBUMVIEW_CONFIGのTOMLファイル）からConfigを読み込み、
// LOG_LEVELに従ったJSON構造化ログをグローバルロガーとしてセットアップする。
func Init(w io.Writer) (*config.Config, error) {
	// 設定の読み込み失敗もJSONで記録できるよう、先にInfoレベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Components はserveとwarmが共有する依存関係。
type Components struct {
	Controller *browse.Controller
	Registry   *prometheus.Registry
	Metrics    *metrics.Collector
}

// Build は設定から上流クライアント、キャッシュ、代表画像セレクタ、
// 画面コントローラを組み立てる。
func Build(cfg *config.Config, log *slog.Logger) (*Components, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	httpClient, err := newUpstreamHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	opts := []transport.Option{
		transport.WithRecorder(collector),
		transport.WithMaxResponseSize(cfg.FetchMaxSize),
	}
	if cfg.UpstreamRate > 0 {
		burst := int(math.Ceil(cfg.UpstreamRate))
		opts = append(opts, transport.WithLimiter(rate.NewLimiter(rate.Limit(cfg.UpstreamRate), burst)))
	}
	client := transport.NewClient(httpClient, cfg.APIBaseURL, log, opts...)
	resources := transport.NewResources(client)

	sel := selector.NewSelector(
		resources,
		selector.NewRandomSource(),
		cache.NewExpiring[int, string](cfg.CacheTTL, cache.WithObserver("account_images", collector)),
		cache.NewExpiring[int, []string](cfg.CacheTTL, cache.WithObserver("collection_images", collector)),
		log,
		selector.Config{
			PlaceholderURL: cfg.PlaceholderURL,
			SetSize:        cfg.RepresentativeCount,
		},
	)

	controller := browse.NewController(browse.Deps{
		Source:          resources,
		Representatives: sel,
		Coordinator:     bulk.NewCoordinator(cfg.FetchMaxConcurrent, collector),
		Collections:     cache.NewStore[int, []model.Collection](cache.WithObserver("collections", collector)),
		Items:           cache.NewStore[int, []model.Item](cache.WithObserver("items", collector)),
		Sanitizer:       security.NewTitleSanitizer(),
		Recorder:        collector,
		Logger:          log,
		SetSize:         cfg.RepresentativeCount,
	})

	return &Components{
		Controller: controller,
		Registry:   reg,
		Metrics:    collector,
	}, nil
}

// newUpstreamHTTPClient は上流API用のHTTPクライアントを生成する。
// BlockPrivateUpstreamが有効な場合はベースURLを静的に検証し、
// 接続時にもプライベートIPを拒否するクライアントを返す。
func newUpstreamHTTPClient(cfg *config.Config) (*http.Client, error) {
	if !cfg.BlockPrivateUpstream {
		return &http.Client{Timeout: cfg.FetchTimeout}, nil
	}

	guard := security.NewUpstreamGuard()
	if err := guard.ValidateURL(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("upstream URL rejected: %w", err)
	}
	return guard.NewSafeClient(cfg.FetchTimeout), nil
}

// NewServer はルーターを組み込んだHTTPサーバーを生成する。
// RATE_LIMIT_GENERALが0以下の場合はレート制限を行わない。
// 返り値のstop関数はレートリミッターのバックグラウンド処理を停止する。
func NewServer(cfg *config.Config, c *Components, log *slog.Logger) (*http.Server, func()) {
	var limiter *middleware.RateLimiter
	stop := func() {}
	if cfg.RateLimitGeneral > 0 {
		limiter = middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral))
		stop = limiter.Stop
	}

	// Shutdownは乗っ取り済みのWebSocket接続を待たないため、
	// シャットダウン開始をコンテキストのキャンセルでセッションに伝える
	sessionsCtx, endSessions := context.WithCancel(context.Background())

	router := handler.NewRouter(&handler.RouterDeps{
		Entries:           c.Controller,
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		MetricsHandler:    metrics.Handler(c.Registry),
		SessionsContext:   sessionsCtx,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	server.RegisterOnShutdown(endSessions)

	return server, stop
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Duration("cache_ttl", cfg.CacheTTL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWarm:
		return runWarm(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	components, err := Build(cfg, log)
	if err != nil {
		return err
	}

	server, stopLimiter := NewServer(cfg, components, log)
	defer stopLimiter()

	// WARM_INTERVALが0の場合は定期ウォームアップを行わない
	if cfg.WarmInterval > 0 {
		warmer := worker.NewWarmer(components.Controller, log, cfg.FetchMaxConcurrent)
		go warmer.Start(ctx, cfg.WarmInterval)
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	return serve(ctx, server, ln, log)
}

// serve はlnでHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func serve(ctx context.Context, server *http.Server, ln net.Listener, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWarm はアカウント一覧と各アカウントのコレクション一覧を1回生成し、
// 上流APIとの疎通と所要時間を記録する。
func runWarm(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	components, err := Build(cfg, log)
	if err != nil {
		return err
	}

	result, err := worker.NewWarmer(components.Controller, log, cfg.FetchMaxConcurrent).RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("warm failed: %w", err)
	}

	log.Info("warm completed",
		slog.Int("account_count", result.Accounts),
		slog.Int("collection_list_count", result.CollectionLists),
		slog.Int("failed_count", len(result.FailedAccountIDs)),
		slog.Duration("elapsed", result.Duration),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
