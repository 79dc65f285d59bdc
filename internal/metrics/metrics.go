// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordTokenVerificationFailure(reason string)
	RecordDataDiscrepancy(flow string)
	RecordCompensation(flow string, success bool)
	RecordOrphanProfilesRemoved(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	tokenVerifyFail *prometheus.CounterVec
	dataDiscrepancy *prometheus.CounterVec
	compensation    *prometheus.CounterVec
	orphansRemoved  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "profman_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokenVerifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profman_token_verification_fail_total",
			Help: "IDトークン検証失敗の合計数（理由別）",
		}, []string{"reason"}),
		dataDiscrepancy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profman_data_discrepancy_total",
			Help: "IdPとストア間のデータ不整合の合計数（フロー別）",
		}, []string{"flow"}),
		compensation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profman_compensation_total",
			Help: "補償削除の試行数（フロー別・結果別）",
		}, []string{"flow", "result"}),
		orphansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "profman_orphan_profiles_removed_total",
			Help: "整合ワーカーが削除した孤児プロフィールの合計数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.tokenVerifyFail,
		c.dataDiscrepancy,
		c.compensation,
		c.orphansRemoved,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordTokenVerificationFailure はIDトークン検証失敗を理由別に記録する。
// reasonは expired / invalid / revoked のいずれか。
func (c *Collector) RecordTokenVerificationFailure(reason string) {
	c.tokenVerifyFail.WithLabelValues(reason).Inc()
}

// RecordDataDiscrepancy はIdPとストア間のデータ不整合を記録する。
// flowは create / delete / admin_delete / update_email / read のいずれか。
func (c *Collector) RecordDataDiscrepancy(flow string) {
	c.dataDiscrepancy.WithLabelValues(flow).Inc()
}

// RecordCompensation は補償削除の試行結果を記録する。
func (c *Collector) RecordCompensation(flow string, success bool) {
	result := "success"
	if !success {
		result = "fail"
	}
	c.compensation.WithLabelValues(flow, result).Inc()
}

// RecordOrphanProfilesRemoved は整合ワーカーが削除した孤児プロフィール数を記録する。
func (c *Collector) RecordOrphanProfilesRemoved(count int) {
	c.orphansRemoved.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
