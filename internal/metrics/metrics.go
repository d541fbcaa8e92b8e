package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for processed files and answered questions.
const (
	OutcomeIndexed  = "indexed"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"

	OutcomeAnswered = "answered"
	OutcomeUnknown  = "unknown"
	OutcomeError    = "error"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	files        *prometheus.CounterVec
	fileDuration prometheus.Histogram
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	questions    *prometheus.CounterVec
	matches      prometheus.Histogram
	credits      prometheus.Counter
	commits      prometheus.Counter
}

// New creates the collectors on a dedicated registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	m := &Metrics{
		reg: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repolens_ingest_files_total",
			Help: "Files processed during ingestion by outcome.",
		}, []string{"outcome"}),
		fileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repolens_ingest_file_seconds",
			Help:    "Time to summarize, embed and store one file.",
			Buckets: buckets,
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repolens_ingest_runs_total",
			Help: "Ingestion runs by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repolens_ingest_run_seconds",
			Help:    "Duration of a whole ingestion run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repolens_questions_total",
			Help: "Questions answered by outcome.",
		}, []string{"outcome"}),
		matches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "repolens_question_matches",
			Help:    "Files retrieved above the relevance floor per question.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
		}),
		credits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repolens_credits_charged_total",
			Help: "Credits deducted for ingestion.",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repolens_commits_summarized_total",
			Help: "Commits summarized and stored.",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.files, m.fileDuration,
		m.runs, m.runDuration,
		m.questions, m.matches,
		m.credits, m.commits,
	)
	return m
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// FileProcessed records one file with its outcome and duration.
func (m *Metrics) FileProcessed(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(outcome).Inc()
	m.fileDuration.Observe(d.Seconds())
}

// RunFinished records the end of an ingestion run.
func (m *Metrics) RunFinished(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// QuestionAnswered records a question with its outcome and the number of
// files retrieved for it.
func (m *Metrics) QuestionAnswered(outcome string, matches int) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(outcome).Inc()
	m.matches.Observe(float64(matches))
}

// CreditsCharged records credits deducted from a balance.
func (m *Metrics) CreditsCharged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.credits.Add(float64(n))
}

// CommitsSummarized records newly stored commit summaries.
func (m *Metrics) CommitsSummarized(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.commits.Add(float64(n))
}
