// Package transport は上流の読み取り専用JSON APIへのアクセスを提供する。
// 1回のGETリクエストでリソースパスを取得し、JSONをデコードして返す。
// リトライは行わない。
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/albumview/internal/model"
)

const (
	// DefaultBaseURL は上流APIのデフォルトのベースURL。
	DefaultBaseURL = "https://jsonplaceholder.typicode.com"
	// defaultMaxResponseSize はレスポンスボディの最大サイズ（5MB）。
	defaultMaxResponseSize = 5 * 1024 * 1024
)

// Getter は上流APIからリソースを1件取得するインターフェース。
// テスト時にモックに差し替え可能。
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

// Recorder は上流リクエストの結果を受け取るインターフェース。
// statusCodeはレスポンスを受信できなかった場合は0となる。
type Recorder interface {
	RecordUpstreamRequest(statusCode int, duration time.Duration)
}

// Client は上流JSON APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	maxSize    int64
	limiter    *rate.Limiter
	recorder   Recorder
}

// Option はClientの生成オプション。
type Option func(*Client)

// WithLimiter は各リクエスト前に待機するレートリミッターを設定する。
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithRecorder はリクエスト結果の記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithMaxResponseSize はレスポンスボディの最大サイズを設定する。
// 0以下の場合はデフォルト値を使用する。
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxSize:    defaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL は上流APIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get はpathのリソースを取得し、JSONをoutにデコードする。
// 2xx以外のステータス、通信エラー、デコード失敗はすべて*model.TransportErrorとして返す。
func (c *Client) Get(ctx context.Context, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &model.TransportError{Path: path, Err: err}
		}
	}

	start := time.Now()

	// HTTPリクエスト作成
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &model.TransportError{Path: path, Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Albumview/1.0")

	// HTTPリクエスト実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(0, start)
		c.logger.Error("上流APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	c.record(resp.StatusCode, start)

	// HTTPステータスチェック
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("上流APIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &model.TransportError{
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("上流APIがステータス %d を返しました", resp.StatusCode),
		}
	}

	// レスポンスボディ読み取り（サイズ上限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return &model.TransportError{Path: path, Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}
	if int64(len(body)) > c.maxSize {
		return &model.TransportError{Path: path, Err: fmt.Errorf("レスポンスサイズが上限を超えています: > %d bytes", c.maxSize)}
	}

	// JSONデコード
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("上流APIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return &model.TransportError{Path: path, Err: fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)}
	}

	c.logger.Debug("上流APIからリソースを取得しました",
		slog.String("path", path),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (c *Client) record(statusCode int, start time.Time) {
	if c.recorder != nil {
		c.recorder.RecordUpstreamRequest(statusCode, time.Since(start))
	}
}
