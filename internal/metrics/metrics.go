package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests and multiple engines do not collide on
// the global one.
type Metrics struct {
	Registry *prometheus.Registry

	Submissions     *prometheus.CounterVec // outcome: created|already_submitted|malformed|invalid|error
	LessonScore     prometheus.Histogram
	GradeDuration   prometheus.Histogram
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lesson_submissions_total",
				Help: "Lesson submissions by outcome",
			},
			[]string{"outcome"},
		),
		LessonScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lesson_result_percentage",
			Help:    "Percentage of newly created lesson results",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		GradeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lesson_grade_duration_seconds",
			Help:    "Time spent normalizing and scoring one submission",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		),
	}
	m.Registry.MustRegister(m.Submissions, m.LessonScore, m.GradeDuration, m.RequestCounter, m.RequestDuration)
	return m
}

func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveResult(percentage int, gradeTime time.Duration) {
	if m == nil {
		return
	}
	m.LessonScore.Observe(float64(percentage))
	m.GradeDuration.Observe(gradeTime.Seconds())
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
