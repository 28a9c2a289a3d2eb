package sessionclient

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for assessment service calls.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	failSafes prometheus.Counter
}

// MustNewMetrics constructs and registers the collectors on reg. Any
// registration error panics, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindbridge",
			Subsystem: "assessment_client",
			Name:      "requests_total",
			Help:      "Assessment service calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mindbridge",
			Subsystem: "assessment_client",
			Name:      "request_duration_seconds",
			Help:      "Latency of assessment service calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	failSafes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mindbridge",
			Subsystem: "assessment_client",
			Name:      "dynamic_failsafe_final_total",
			Help:      "Dynamic question fetches downgraded to Final after a failure.",
		},
	)

	reg.MustRegister(requests, duration, failSafes)
	return &Metrics{requests: requests, duration: duration, failSafes: failSafes}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.requests.WithLabelValues(op, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "validation"
	}
	var unavail *ServiceUnavailableError
	if errors.As(err, &unavail) {
		return "service_unavailable"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}

// instrumentedClient records every call on Metrics.
type instrumentedClient struct {
	inner   API
	metrics *Metrics
}

// WithMetrics wraps api so each call is counted and timed.
func WithMetrics(api API, m *Metrics) API {
	return &instrumentedClient{inner: api, metrics: m}
}

func (i *instrumentedClient) StartSession(ctx context.Context) (string, error) {
	start := time.Now()
	id, err := i.inner.StartSession(ctx)
	i.metrics.observe("start_session", start, err)
	return id, err
}

func (i *instrumentedClient) FetchStaticQuestions(ctx context.Context) ([]Question, error) {
	start := time.Now()
	qs, err := i.inner.FetchStaticQuestions(ctx)
	i.metrics.observe("fetch_static_questions", start, err)
	return qs, err
}

func (i *instrumentedClient) SubmitStaticAnswers(ctx context.Context, sessionID string, answers []Answer) error {
	start := time.Now()
	err := i.inner.SubmitStaticAnswers(ctx, sessionID, answers)
	i.metrics.observe("submit_static_answers", start, err)
	return err
}

func (i *instrumentedClient) FetchNextDynamicQuestion(ctx context.Context, sessionID string) (NextQuestion, error) {
	start := time.Now()
	next, err := i.inner.FetchNextDynamicQuestion(ctx, sessionID)
	i.metrics.duration.WithLabelValues("fetch_next_dynamic").Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		i.metrics.requests.WithLabelValues("fetch_next_dynamic", outcomeLabel(err)).Inc()
	case next.FailSafe != nil:
		i.metrics.failSafes.Inc()
		i.metrics.requests.WithLabelValues("fetch_next_dynamic", "failsafe_final").Inc()
	case next.Final():
		i.metrics.requests.WithLabelValues("fetch_next_dynamic", "final").Inc()
	default:
		i.metrics.requests.WithLabelValues("fetch_next_dynamic", "ok").Inc()
	}
	return next, err
}

func (i *instrumentedClient) SubmitDynamicAnswer(ctx context.Context, sessionID, questionText, answer string) error {
	start := time.Now()
	err := i.inner.SubmitDynamicAnswer(ctx, sessionID, questionText, answer)
	i.metrics.observe("submit_dynamic_answer", start, err)
	return err
}

func (i *instrumentedClient) CompleteSession(ctx context.Context, sessionID string) (*Result, error) {
	start := time.Now()
	res, err := i.inner.CompleteSession(ctx, sessionID)
	i.metrics.observe("complete_session", start, err)
	return res, err
}

func (i *instrumentedClient) FetchHistory(ctx context.Context) ([]SessionSummary, error) {
	start := time.Now()
	out, err := i.inner.FetchHistory(ctx)
	i.metrics.observe("fetch_history", start, err)
	return out, err
}

func (i *instrumentedClient) FetchSessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error) {
	start := time.Now()
	out, err := i.inner.FetchSessionDetail(ctx, sessionID)
	i.metrics.observe("fetch_session_detail", start, err)
	return out, err
}
