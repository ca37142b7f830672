package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BatchesSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_batches_submitted_total",
		Help: "Пачки подписчиков, переданные в очередь",
	}, []string{"mode"})
	BatchSubmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_batch_submit_errors_total",
		Help: "Ошибки постановки пачек в очередь",
	}, []string{"mode"})
	SubscribersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_subscribers_total",
		Help: "Подписчики, прочитанные из сервиса пользователей",
	}, []string{"mode"})
	DigestsRendered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_rendered_total",
		Help: "Отрисованные дайджесты",
	}, []string{"mode"})
	EmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_emails_sent_total",
		Help: "Отправленные письма с дайджестом",
	}, []string{"status"})
	WorkerJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "digest_worker_jobs_total",
		Help: "Обработанные воркером задачи по исходу",
	}, []string{"outcome"})
	DigestBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_build_seconds",
		Help:    "Время построения дайджестов пачки",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		BatchesSubmitted,
		BatchSubmitErrors,
		SubscribersTotal,
		DigestsRendered,
		EmailsSent,
		WorkerJobs,
		DigestBuildSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
