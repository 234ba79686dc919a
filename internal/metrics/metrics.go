// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// ゲートウェイとリコンサイラから利用する。
type Recorder interface {
	RecordRequest(operation string, status int)
	RecordRequestFailure(operation string, code string)
	RecordRequestLatency(operation string, duration time.Duration)
	RecordMutationApplied(kind string)
	RecordStaleLoadDiscarded()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests       *prometheus.CounterVec
	requestFails   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	mutations      *prometheus.CounterVec
	staleDiscards  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinelog_requests_total",
			Help: "コンテンツサービスへのリクエスト数（操作・ステータス別）",
		}, []string{"operation", "status"}),
		requestFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinelog_request_failures_total",
			Help: "失敗したリクエスト数（操作・エラーコード別）",
		}, []string{"operation", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cinelog_request_latency_seconds",
			Help:    "コンテンツサービスへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinelog_mutations_applied_total",
			Help: "コレクションに適用された変更の数（種別別）",
		}, []string{"kind"}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinelog_stale_loads_discarded_total",
			Help: "後続のロードに追い越されて破棄された古いロード結果の数",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestFails,
		c.requestLatency,
		c.mutations,
		c.staleDiscards,
	)

	return c
}

// RecordRequest はリクエストの完了をHTTPステータスとともに記録する。
func (c *Collector) RecordRequest(operation string, status int) {
	c.requests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// RecordRequestFailure はリクエストの失敗をエラーコードとともに記録する。
func (c *Collector) RecordRequestFailure(operation string, code string) {
	c.requestFails.WithLabelValues(operation, code).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(operation string, duration time.Duration) {
	c.requestLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordMutationApplied はコレクションへの変更適用を記録する。
func (c *Collector) RecordMutationApplied(kind string) {
	c.mutations.WithLabelValues(kind).Inc()
}

// RecordStaleLoadDiscarded は古いロード結果の破棄を記録する。
func (c *Collector) RecordStaleLoadDiscarded() {
	c.staleDiscards.Inc()
}

// NopRecorder はメトリクスを記録しないRecorder。
// メトリクスが不要な構成やテストで使用する。
type NopRecorder struct{}

func (NopRecorder) RecordRequest(string, int)                    {}
func (NopRecorder) RecordRequestFailure(string, string)          {}
func (NopRecorder) RecordRequestLatency(string, time.Duration)   {}
func (NopRecorder) RecordMutationApplied(string)                 {}
func (NopRecorder) RecordStaleLoadDiscarded()                    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = NopRecorder{}
)
