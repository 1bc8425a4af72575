package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Riboost-Studio/pos-print-bridge/internal/agent"
)

// Prometheus metric names.
const (
	MetricPrintJobsTotal         = "printbridge_print_jobs_total"
	MetricPrintDurationSeconds   = "printbridge_print_duration_seconds"
	MetricReceiptGenerationTotal = "printbridge_receipt_generation_requests_total"
	MetricAgentConnectsTotal     = "printbridge_agent_connects_total"
	MetricPrinterScansTotal      = "printbridge_printer_scans_total"
)

// Metrics records bridge activity on a private registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	printJobs     *prometheus.CounterVec
	printDuration prometheus.Histogram
	generations   prometheus.Counter
	connects      *prometheus.CounterVec
	scans         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		printJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrintJobsTotal,
			Help: "Receipt print jobs by outcome.",
		}, []string{"result"}),
		printDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricPrintDurationSeconds,
			Help:    "Time from print request to agent acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReceiptGenerationTotal,
			Help: "Receipt generation requests sent to the backend.",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAgentConnectsTotal,
			Help: "Agent connection attempts by outcome.",
		}, []string{"result"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrinterScansTotal,
			Help: "Printer discovery scans by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.printJobs, m.printDuration, m.generations, m.connects, m.scans)
	return m
}

// Registry exposes the metrics for scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) printResult(err error, took time.Duration) {
	if m == nil {
		return
	}
	m.printJobs.WithLabelValues(ResultLabel(err)).Inc()
	if err == nil {
		m.printDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) generationRequested() {
	if m == nil {
		return
	}
	m.generations.Inc()
}

func (m *Metrics) connectResult(result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result).Inc()
}

func (m *Metrics) scanResult(result string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(result).Inc()
}

// ResultLabel classifies a PrintReceipt outcome.
func ResultLabel(err error) string {
	var loadErr *agent.LoadError
	var connErr *agent.ConnectionError
	switch {
	case err == nil:
		return "printed"
	case errors.Is(err, ErrInvalidTransaction):
		return "invalid"
	case errors.Is(err, ErrNoPrinterConfigured):
		return "no_printer"
	case errors.Is(err, ErrReceiptUnavailable):
		return "receipt_unavailable"
	case errors.As(err, &loadErr):
		return "agent_unavailable"
	case errors.As(err, &connErr):
		return "agent_connection_failed"
	default:
		return "print_failed"
	}
}
