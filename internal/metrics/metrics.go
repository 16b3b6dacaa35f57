// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// RPCアダプター、認証サービス、ワーカーから利用する。
type MetricsCollector interface {
	RecordProcedureCall(procedure, code string, duration time.Duration)
	RecordBatchSize(size int)
	RecordSessionCache(hit bool)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	rpcRequests     *prometheus.CounterVec
	rpcDuration     *prometheus.HistogramVec
	batchSize       prometheus.Histogram
	sessionCache    *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_rpc_requests_total",
			Help: "プロシージャ呼び出しの合計数（結果コード別）",
		}, []string{"procedure", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "todoman_rpc_duration_seconds",
			Help:    "プロシージャ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "todoman_rpc_batch_size",
			Help:    "バッチリクエストに含まれる呼び出し数",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		}),
		sessionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "todoman_session_cache_total",
			Help: "セッションキャッシュの参照結果（hit/miss）",
		}, []string{"result"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "todoman_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.rpcRequests,
		c.rpcDuration,
		c.batchSize,
		c.sessionCache,
		c.sessionsCleaned,
	)

	return c
}

// RecordProcedureCall はプロシージャ呼び出しの結果とレイテンシを記録する。
// codeは成功時"OK"、失敗時はAPIErrorのコード。
func (c *Collector) RecordProcedureCall(procedure, code string, duration time.Duration) {
	c.rpcRequests.WithLabelValues(procedure, code).Inc()
	c.rpcDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

// RecordBatchSize はバッチリクエストの件数を記録する。
func (c *Collector) RecordBatchSize(size int) {
	c.batchSize.Observe(float64(size))
}

// RecordSessionCache はセッションキャッシュのヒット/ミスを記録する。
func (c *Collector) RecordSessionCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.sessionCache.WithLabelValues(result).Inc()
}

// RecordSessionsCleaned はクリーンアップで削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
