// README: Booking aggregate, status definitions, and fare snapshots.
package booking

import (
	"time"

	"solbus/internal/modules/costmodel"
	"solbus/internal/modules/fare"
	"solbus/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
	StatusCompleted Status = "completed"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// AllowedTransitions represents the booking state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusNoShow, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further booking transitions are possible.
func Terminal(s Status) bool {
	return len(AllowedTransitions[s]) == 0
}

// Payment state is independent of booking state; refunds require payment.
var allowedPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid: {PaymentPaid},
	PaymentPaid:   {PaymentRefunded},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range allowedPaymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Booking is a one-off reservation against exactly one service instance.
type Booking struct {
	ID          types.ID
	TimetableID types.ID
	ServiceDate time.Time
	Departure   time.Time
	CustomerID  types.ID

	PassengerTier      fare.Tier
	SeatNumber         string
	WheelchairRequired bool
	IsMember           bool

	Status         Status
	StatusVersion  int
	PaymentStatus  PaymentStatus
	FareSnapshotID *types.ID

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	CompletedAt *time.Time
}

// Snapshot is the immutable fare record written when a booking is
// confirmed. It is the audit anchor: once written it never changes, so a
// confirmed passenger's fare cannot drift with later occupancy.
type Snapshot struct {
	ID        types.ID            `json:"id"`
	BookingID types.ID            `json:"booking_id"`
	TripCost  costmodel.Breakdown `json:"trip_cost"`
	Occupancy fare.Occupancy      `json:"occupancy_at_quote"`
	Tier      fare.Tier           `json:"tier"`

	QuotedFare             types.Money `json:"quoted_fare"`
	BreakEvenFarePerPerson types.Money `json:"break_even_fare_per_person"`
	FareAtCapacity         types.Money `json:"fare_at_capacity"`

	CreatedAt time.Time `json:"created_at"`
}

// InstanceRef identifies one service instance with booking activity.
type InstanceRef struct {
	TimetableID types.ID
	ServiceDate time.Time
}
