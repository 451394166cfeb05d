package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка запроса консоли
	RequestDuration *prometheus.HistogramVec

	// Traffic: жизненный цикл очереди
	TasksEnqueued *prometheus.CounterVec
	ClaimsTotal   *prometheus.CounterVec // result: won / conflict

	// Mailbox: доставка одноразовых команд
	CommandsDelivered prometheus.Counter

	// Enforcement: отказы и деградация лимитера
	RateLimitRejections prometheus.Counter
	LimiterFailOpen     prometheus.Counter

	// Audit: заполненность буфера трейла (backpressure)
	TrailBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_request_duration_seconds",
			Help:    "Histogram of request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"handler", "status"}),

		TasksEnqueued: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "console_tasks_enqueued_total",
			Help: "Total number of enqueued tasks.",
		}, []string{"type", "priority"}),

		ClaimsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "console_claims_total",
			Help: "Claim attempts by result.",
		}, []string{"result"}), // результаты: won, conflict

		CommandsDelivered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "console_commands_delivered_total",
			Help: "One-shot commands handed to their targets.",
		}),

		RateLimitRejections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "console_rate_limit_rejections_total",
			Help: "Requests rejected by the sliding-window limiter.",
		}),

		LimiterFailOpen: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "console_rate_limit_fail_open_total",
			Help: "Limiter decisions allowed because the ephemeral store was unavailable.",
		}),

		TrailBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "console_trail_buffer_utilization",
			Help: "Current number of events in the trail buffer.",
		}),
	}
}
