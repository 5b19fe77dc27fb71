// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// transport.Recorder、cache.Observer、bulk.BatchObserver、browse.Recorderを満たす。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	batchSize        prometheus.Histogram
	navigations      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "albumview_upstream_requests_total",
			Help: "上流APIへのリクエスト数（ステータス別、通信失敗はerror）",
		}, []string{"status"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "albumview_upstream_latency_seconds",
			Help:    "上流APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "albumview_cache_hits_total",
			Help: "キャッシュヒット数",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "albumview_cache_misses_total",
			Help: "キャッシュミス数（期限切れを含む）",
		}, []string{"cache"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "albumview_bulk_batch_size",
			Help:    "一括取得1回あたりのリクエスト数",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "albumview_navigations_total",
			Help: "画面遷移の実行数（画面種別・結果別）",
		}, []string{"view", "result"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.cacheHits,
		c.cacheMisses,
		c.batchSize,
		c.navigations,
	)

	return c
}

// RecordUpstreamRequest は上流リクエストの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamRequest(statusCode int, duration time.Duration) {
	status := "error"
	if statusCode != 0 {
		status = strconv.Itoa(statusCode)
	}
	c.upstreamRequests.WithLabelValues(status).Inc()
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit(name string) {
	c.cacheHits.WithLabelValues(name).Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss(name string) {
	c.cacheMisses.WithLabelValues(name).Inc()
}

// RecordBatchSize は一括取得のリクエスト数を記録する。
func (c *Collector) RecordBatchSize(size int) {
	c.batchSize.Observe(float64(size))
}

// RecordNavigation は画面遷移の結果を記録する。
func (c *Collector) RecordNavigation(view string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.navigations.WithLabelValues(view, result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
