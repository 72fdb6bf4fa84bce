package metrics

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_requests_total",
		Help: "Total API requests by endpoint",
	}, []string{"endpoint"})
	RequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_request_errors_total",
		Help: "Total API request failures by endpoint",
	}, []string{"endpoint"})
	ReconcileOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_reconcile_total",
		Help: "Reconciled payloads by matched variant",
	}, []string{"variant"})
	OptimisticRollbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chirp_optimistic_rollbacks_total",
		Help: "Optimistic mutations reverted after double failure",
	})
	FallbackFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chirp_fallback_fetches_total",
		Help: "Fetch-latest reconciliation fallbacks issued",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chirp_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(Requests, RequestErrors, ReconcileOutcomes,
		OptimisticRollbacks, FallbackFetches, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("CHIRP_METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// IncRequest counts one API request against an endpoint.
func IncRequest(endpoint string) { Requests.WithLabelValues(endpoint).Inc() }

// IncRequestError counts one failed API request against an endpoint.
func IncRequestError(endpoint string) { RequestErrors.WithLabelValues(endpoint).Inc() }

// IncReconcile counts one reconciled payload by matched variant.
func IncReconcile(variant string) { ReconcileOutcomes.WithLabelValues(variant).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
