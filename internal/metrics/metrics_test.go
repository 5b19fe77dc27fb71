package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はラベル値が一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func TestRecordUpstreamRequest_LabelsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamRequest(200, 20*time.Millisecond)
	c.RecordUpstreamRequest(200, 30*time.Millisecond)
	c.RecordUpstreamRequest(0, time.Second)

	if v := findMetric(t, reg, "albumview_upstream_requests_total", map[string]string{"status": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("status=200 = %v, want 2", v)
	}
	if v := findMetric(t, reg, "albumview_upstream_requests_total", map[string]string{"status": "error"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("status=error = %v, want 1", v)
	}
	if n := findMetric(t, reg, "albumview_upstream_latency_seconds", nil).GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("latency sample count = %d, want 3", n)
	}
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCacheHit("account_image")
	c.RecordCacheMiss("account_image")
	c.RecordCacheMiss("account_image")

	if v := findMetric(t, reg, "albumview_cache_hits_total", map[string]string{"cache": "account_image"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("hits = %v, want 1", v)
	}
	if v := findMetric(t, reg, "albumview_cache_misses_total", map[string]string{"cache": "account_image"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("misses = %v, want 2", v)
	}
}

func TestRecordBatchSizeAndNavigation(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBatchSize(10)
	c.RecordNavigation("accounts", true)
	c.RecordNavigation("item", false)

	h := findMetric(t, reg, "albumview_bulk_batch_size", nil).GetHistogram()
	if h.GetSampleCount() != 1 || h.GetSampleSum() != 10 {
		t.Errorf("batch size count/sum = %d/%v, want 1/10", h.GetSampleCount(), h.GetSampleSum())
	}
	if v := findMetric(t, reg, "albumview_navigations_total", map[string]string{"view": "item", "result": "failure"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("navigations{item,failure} = %v, want 1", v)
	}
}
