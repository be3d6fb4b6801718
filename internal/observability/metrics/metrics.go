package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatbotLatencyMetric is the fully qualified name of the chatbot
// request latency histogram; the stats handler reads it back out of the
// registry to build latency snapshots.
const ChatbotLatencyMetric = "docsentra_chatbot_request_seconds"

// VisitMetrics exposes counters/histograms for the visit flow.
type VisitMetrics struct {
	visitsOpened      prometheus.Counter
	visitsClosed      *prometheus.CounterVec
	questionBatches   *prometheus.CounterVec
	questionsAnswered prometheus.Counter
	busyRejected      prometheus.Counter
	chatbotLatency    *prometheus.HistogramVec
	feedReconnects    prometheus.Counter
}

func NewVisitMetrics(reg prometheus.Registerer) *VisitMetrics {
	m := &VisitMetrics{
		visitsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docsentra",
			Subsystem: "visit",
			Name:      "opened_total",
			Help:      "Total visit sessions opened",
		}),
		visitsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsentra",
			Subsystem: "visit",
			Name:      "closed_total",
			Help:      "Total visit sessions closed",
		}, []string{"reason"}),
		questionBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsentra",
			Subsystem: "visit",
			Name:      "question_batches_total",
			Help:      "Question batches parsed from chatbot responses",
		}, []string{"source"}),
		questionsAnswered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docsentra",
			Subsystem: "visit",
			Name:      "questions_answered_total",
			Help:      "Suggested questions answered by clinicians",
		}),
		busyRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docsentra",
			Subsystem: "visit",
			Name:      "busy_rejected_total",
			Help:      "Submissions rejected because a chatbot call was in flight",
		}),
		chatbotLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docsentra",
			Subsystem: "chatbot",
			Name:      "request_seconds",
			Help:      "Latency of chatbot backend requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		feedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docsentra",
			Subsystem: "mailfeed",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts against the email event feed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.visitsOpened,
		m.visitsClosed,
		m.questionBatches,
		m.questionsAnswered,
		m.busyRejected,
		m.chatbotLatency,
		m.feedReconnects,
	)
	return m
}

func (m *VisitMetrics) ObserveVisitOpened() {
	if m == nil {
		return
	}
	m.visitsOpened.Inc()
}

func (m *VisitMetrics) ObserveVisitClosed(reason string) {
	if m == nil {
		return
	}
	m.visitsClosed.WithLabelValues(reason).Inc()
}

// ObserveQuestionBatch records how a batch was produced: "objects" for
// JSON-fragment extraction, "fallback" for numbered lines, "empty" when
// nothing was parseable.
func (m *VisitMetrics) ObserveQuestionBatch(source string) {
	if m == nil {
		return
	}
	m.questionBatches.WithLabelValues(source).Inc()
}

func (m *VisitMetrics) ObserveQuestionAnswered() {
	if m == nil {
		return
	}
	m.questionsAnswered.Inc()
}

func (m *VisitMetrics) ObserveBusyRejected() {
	if m == nil {
		return
	}
	m.busyRejected.Inc()
}

func (m *VisitMetrics) ObserveChatbotRequest(endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.chatbotLatency.WithLabelValues(endpoint, status).Observe(seconds)
}

func (m *VisitMetrics) ObserveFeedReconnect() {
	if m == nil {
		return
	}
	m.feedReconnects.Inc()
}
