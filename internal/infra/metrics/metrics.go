package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_cycles_total",
		Help: "Количество циклов опроса страницы Live SMS",
	})
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poll_errors_total",
		Help: "Ошибки при опросе страницы Live SMS",
	})
	MessagesObserved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_observed_total",
		Help: "Новые сообщения, обнаруженные насосом",
	})
	OTPExtracted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "otp_extracted_total",
		Help: "Сообщения, из которых удалось извлечь код",
	})
	OTPForwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "otp_forwarded_total",
		Help: "Коды, успешно отправленные в Telegram",
	})
	DuplicatesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "otp_duplicates_suppressed_total",
		Help: "Коды, отброшенные дедупликатором",
	})
	SendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	ReloginAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relogin_attempts_total",
		Help: "Попытки повторного логина на портал",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PollCycles,
		PollErrors,
		MessagesObserved,
		OTPExtracted,
		OTPForwarded,
		DuplicatesSuppressed,
		SendErrors,
		ReloginAttempts,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, status).Inc()
}
