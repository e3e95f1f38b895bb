package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Parses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sel_parses_total",
			Help: "Total number of expression parses, by outcome.",
		},
		[]string{"outcome"},
	)
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sel_evaluations_total",
			Help: "Total number of expression evaluations, by execution mode.",
		},
		[]string{"mode"},
	)
	EvaluationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sel_evaluation_errors_total",
			Help: "Total number of failed expression evaluations, by execution mode.",
		},
		[]string{"mode"},
	)
	Compilations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sel_compilations_total",
			Help: "Total number of expression compilation attempts, by outcome.",
		},
		[]string{"outcome"},
	)
	CompileReverts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sel_compile_reverts_total",
			Help: "Total number of compiled expressions reverted to interpretation.",
		},
	)
)

func init() {
	prometheus.MustRegister(Parses)
	prometheus.MustRegister(Evaluations)
	prometheus.MustRegister(EvaluationErrors)
	prometheus.MustRegister(Compilations)
	prometheus.MustRegister(CompileReverts)
}

func HandleHTTP() {
	http.Handle("/metrics", promhttp.Handler())
}
