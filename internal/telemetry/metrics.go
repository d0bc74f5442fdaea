package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики выполнения flow. Регистрируются в prometheus.DefaultRegisterer
// и отдаются через promhttp.Handler() на /metrics.
var (
	// FlowExecutions — завершённые выполнения по результату (success, failed).
	FlowExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_flow_executions_total",
		Help: "Total flow executions by outcome",
	}, []string{"outcome"})

	// FlowDuration — длительность выполнения flow.
	FlowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agentflow_flow_duration_seconds",
		Help:    "Flow execution duration",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// StepExecutions — шаги по типу и статусу трассы.
	StepExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_step_executions_total",
		Help: "Total executed steps by type and status",
	}, []string{"type", "status"})

	// StepDuration — длительность шага по типу.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentflow_step_duration_seconds",
		Help:    "Step execution duration by type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// TokensUsed — израсходованные токены по типу шага.
	TokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_tokens_total",
		Help: "Total tokens reported by steps",
	}, []string{"type"})

	// ScopeViolations — нарушения ограничений по виду.
	ScopeViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_scope_violations_total",
		Help: "Total scope violations by kind",
	}, []string{"kind"})

	// ExpressionDiagnostics — ошибки вычисления выражений.
	ExpressionDiagnostics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentflow_expression_diagnostics_total",
		Help: "Total expression evaluation failures",
	})

	// HTTPRequests — HTTP запросы к API по методу, маршруту и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_http_requests_total",
		Help: "Total HTTP requests handled",
	}, []string{"method", "route", "code"})

	// ScheduleFires — срабатывания расписаний по результату (queued, duplicate, failed).
	ScheduleFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentflow_schedule_fires_total",
		Help: "Total schedule fires by outcome",
	}, []string{"outcome"})
)
