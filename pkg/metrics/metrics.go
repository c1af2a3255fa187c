package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records metadata for scheduled jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful cron job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed cron job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &CronJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// ConsumptionMetrics counts credit debits and refusals by action.
type ConsumptionMetrics struct {
	consumed     *prometheus.CounterVec
	insufficient *prometheus.CounterVec
}

// NewConsumptionMetrics registers the consumption metrics on the provided registerer.
func NewConsumptionMetrics(reg prometheus.Registerer) *ConsumptionMetrics {
	if reg == nil {
		return &ConsumptionMetrics{}
	}
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_consumed_total",
		Help: "Credits debited, by action.",
	}, []string{"action"})
	insufficient := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credits_insufficient_total",
		Help: "Consumption attempts refused for lack of credits, by action.",
	}, []string{"action"})
	reg.MustRegister(consumed, insufficient)
	return &ConsumptionMetrics{
		consumed:     consumed,
		insufficient: insufficient,
	}
}

// AddConsumed records debited credits for the named action.
func (c *ConsumptionMetrics) AddConsumed(action string, credits int) {
	if c == nil || c.consumed == nil || credits <= 0 {
		return
	}
	c.consumed.WithLabelValues(normalizeLabel(action)).Add(float64(credits))
}

// IncInsufficient increments the refusal counter for the named action.
func (c *ConsumptionMetrics) IncInsufficient(action string) {
	if c == nil || c.insufficient == nil {
		return
	}
	c.insufficient.WithLabelValues(normalizeLabel(action)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
