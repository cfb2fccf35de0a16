package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/masomo-guardian/core"
)

const namespace = "masomo"

// Prometheus counts domain events in its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	ChallengesIssued   prometheus.Counter
	Verifications      *prometheus.CounterVec
	AttendanceMarks    *prometheus.CounterVec
	AttendanceFlags    *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
}

var _ core.Metrics = (*Prometheus)(nil)

func NewPrometheus() *Prometheus {
	m := &Prometheus{
		registry: prometheus.NewRegistry(),
		ChallengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "otp", Name: "challenges_issued_total",
			Help: "One-time codes issued.",
		}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "otp", Name: "verifications_total",
			Help: "Code verifications by outcome.",
		}, []string{"outcome"}),
		AttendanceMarks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendance", Name: "marks_total",
			Help: "Attendance writes by side.",
		}, []string{"side"}),
		AttendanceFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "attendance", Name: "flags_total",
			Help: "Records that turned into a mismatch or a review notice.",
		}, []string{"signal"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route & status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latencies.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChallengesIssued,
		m.Verifications,
		m.AttendanceMarks,
		m.AttendanceFlags,
		m.HTTPRequests,
		m.HTTPRequestSeconds,
	)
	return m
}

func (m *Prometheus) ChallengeIssued()                 { m.ChallengesIssued.Inc() }
func (m *Prometheus) ChallengeVerified(outcome string) { m.Verifications.WithLabelValues(outcome).Inc() }
func (m *Prometheus) AttendanceMarked(side string)     { m.AttendanceMarks.WithLabelValues(side).Inc() }
func (m *Prometheus) AttendanceFlagged(signal string)  { m.AttendanceFlags.WithLabelValues(signal).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
