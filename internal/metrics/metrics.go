package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escaperoom",
			Name:      "booking_created_total",
			Help:      "Count of booking attempts by result.",
		},
		[]string{"result"},
	)

	bookingCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escaperoom",
			Name:      "booking_cancelled_total",
			Help:      "Count of cancellations by mode (soft or hard).",
		},
		[]string{"mode"},
	)

	paymentSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escaperoom",
			Name:      "payment_settled_total",
			Help:      "Count of payment settlements by target status.",
		},
		[]string{"status"},
	)

	sweepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escaperoom",
			Name:      "sweep_transitions_total",
			Help:      "Bookings closed out by the expiration sweep, by outcome.",
		},
		[]string{"outcome"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "escaperoom",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiration sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	availabilityCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escaperoom",
			Name:      "availability_cache_total",
			Help:      "Availability cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingCancelled,
			paymentSettled,
			sweepTransitions,
			sweepDuration,
			availabilityCache,
		)
	})
}

func IncBookingCreated(result string) {
	bookingCreated.WithLabelValues(result).Inc()
}

func IncBookingCancelled(mode string) {
	bookingCancelled.WithLabelValues(mode).Inc()
}

func IncPaymentSettled(status string) {
	paymentSettled.WithLabelValues(status).Inc()
}

func AddSweepTransitions(outcome string, n int) {
	if n > 0 {
		sweepTransitions.WithLabelValues(outcome).Add(float64(n))
	}
}

func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func IncCacheLookup(hit bool) {
	if hit {
		availabilityCache.WithLabelValues("hit").Inc()
		return
	}
	availabilityCache.WithLabelValues("miss").Inc()
}
