package reservation

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/metinatakli/cinex-booking/internal/reservation"

type metrics struct {
	holdsCreated  metric.Int64Counter
	seatConflicts metric.Int64Counter
	resolved      metric.Int64Counter
}

// newMetrics registers the reservation counters on the global meter provider,
// which is a no-op until telemetry is initialized.
func newMetrics() *metrics {
	meter := otel.Meter(meterName)

	return &metrics{
		holdsCreated:  counter(meter, "reservation.holds.created", "Seat holds created or replaced"),
		seatConflicts: counter(meter, "reservation.seat_conflicts", "Hold attempts rejected because seats were taken"),
		resolved:      counter(meter, "reservation.bookings.resolved", "Bookings that reached a terminal status"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}

	return c
}
