// Package metrics 定义了服务暴露给 Prometheus 的指标。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SummaryOutcomes 按结果类型统计摘要请求次数。
	SummaryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_digest",
		Name:      "summary_outcomes_total",
		Help:      "Summarization runs by terminal outcome.",
	}, []string{"outcome"})

	// LLMLatency 记录摘要模型调用耗时。
	LLMLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chat_digest",
		Name:      "llm_request_duration_seconds",
		Help:      "Latency of summarization requests to the language model.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	// IngestedMessages 统计入站消息的处理结果：stored / skipped / failed。
	IngestedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_digest",
		Name:      "ingested_messages_total",
		Help:      "Inbound chat messages by ingestion result.",
	}, []string{"result"})
)

// Handler 返回 /metrics 的 HTTP 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
