package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	runDuration     prom.Histogram
	runOutcome      *prom.CounterVec
	actionDuration  *prom.HistogramVec
	actionResults   *prom.CounterVec
	batchDuration   *prom.HistogramVec
	itemResults     *prom.CounterVec
	publishDuration *prom.HistogramVec
	publishRetries  *prom.CounterVec
	inFlight        *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "contentmigrator",
			Name:      "run_duration_seconds",
			Help:      "Total migration run duration",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentmigrator",
			Name:      "run_outcomes_total",
			Help:      "Migration runs by final status",
		}, []string{"result"})
		pr.actionDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentmigrator",
			Name:      "action_duration_seconds",
			Help:      "Duration of content type actions",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 14),
		}, []string{"content_type"})
		pr.actionResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentmigrator",
			Name:      "action_results_total",
			Help:      "Action result counts by outcome",
		}, []string{"content_type", "result"})
		pr.batchDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentmigrator",
			Name:      "batch_duration_seconds",
			Help:      "Duration of individual batches",
			Buckets:   prom.DefBuckets,
		}, []string{"content_type"})
		pr.itemResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentmigrator",
			Name:      "item_results_total",
			Help:      "Terminal item statuses",
		}, []string{"content_type", "status"})
		pr.publishDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "contentmigrator",
			Name:      "publish_duration_seconds",
			Help:      "Duration of destination publish calls",
			Buckets:   prom.DefBuckets,
		}, []string{"content_type", "result"})
		pr.publishRetries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "contentmigrator",
			Name:      "publish_retries_total",
			Help:      "Publish retries after transient failures",
		}, []string{"content_type"})
		pr.inFlight = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "contentmigrator",
			Name:      "items_in_flight",
			Help:      "Items currently being processed",
		}, []string{"content_type"})
		reg.MustRegister(pr.runDuration, pr.runOutcome, pr.actionDuration, pr.actionResults, pr.batchDuration,
			pr.itemResults, pr.publishDuration, pr.publishRetries, pr.inFlight)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(result ResultLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveActionDuration(contentType string, d time.Duration) {
	if p == nil || p.actionDuration == nil {
		return
	}
	p.actionDuration.WithLabelValues(contentType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncActionResult(contentType string, result ResultLabel) {
	if p == nil || p.actionResults == nil {
		return
	}
	p.actionResults.WithLabelValues(contentType, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBatchDuration(contentType string, d time.Duration) {
	if p == nil || p.batchDuration == nil {
		return
	}
	p.batchDuration.WithLabelValues(contentType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncItemResult(contentType, status string) {
	if p == nil || p.itemResults == nil {
		return
	}
	p.itemResults.WithLabelValues(contentType, status).Inc()
}

func (p *PrometheusRecorder) ObservePublishDuration(contentType string, d time.Duration, success bool) {
	if p == nil || p.publishDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.publishDuration.WithLabelValues(contentType, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPublishRetry(contentType string) {
	if p == nil || p.publishRetries == nil {
		return
	}
	p.publishRetries.WithLabelValues(contentType).Inc()
}

func (p *PrometheusRecorder) AddInFlight(contentType string, delta int) {
	if p == nil || p.inFlight == nil {
		return
	}
	p.inFlight.WithLabelValues(contentType).Add(float64(delta))
}
