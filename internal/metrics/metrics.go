package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homestay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "homestay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GatewayCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homestay_gateway_callbacks_total",
			Help: "Gateway callback deliveries by gateway and result",
		},
		[]string{"gateway", "result"},
	)

	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homestay_wallet_deposits_total",
			Help: "Completed wallet deposits by gateway",
		},
		[]string{"gateway"},
	)

	WithdrawalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homestay_wallet_withdrawals_total",
			Help: "Total number of wallet withdrawal requests",
		},
	)

	BookingPaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homestay_booking_payments_total",
			Help: "Booking payments by method",
		},
		[]string{"method"},
	)

	SettlementsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homestay_host_settlements_total",
			Help: "Total number of host payouts recorded",
		},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homestay_refunds_total",
			Help: "Refund resolutions by decision",
		},
		[]string{"decision"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordCallback(gateway, result string) {
	GatewayCallbacksTotal.WithLabelValues(gateway, result).Inc()
}

func RecordDeposit(gateway string) {
	DepositsTotal.WithLabelValues(gateway).Inc()
}

func RecordWithdrawal() {
	WithdrawalsTotal.Inc()
}

func RecordBookingPayment(method string) {
	BookingPaymentsTotal.WithLabelValues(method).Inc()
}

func RecordSettlement() {
	SettlementsTotal.Inc()
}

func RecordRefund(decision string) {
	RefundsTotal.WithLabelValues(decision).Inc()
}
