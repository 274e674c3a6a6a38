// README: Standing registrations, absences, and the derived passenger roster.
package roster

import (
	"time"

	"solbus/internal/types"
)

type RegistrationStatus string

const (
	RegistrationActive RegistrationStatus = "active"
	RegistrationEnded  RegistrationStatus = "ended"
)

// RegularRegistration is a standing reservation on a timetable, not a
// per-date row. One row covers every matching weekday inside its validity
// window.
type RegularRegistration struct {
	ID         types.ID
	CustomerID types.ID
	TimetableID types.ID
	// DaysMask uses Go weekday numbering: bit 1<<time.Weekday.
	DaysMask   int
	SeatNumber string
	Wheelchair bool
	ValidFrom  time.Time
	ValidUntil *time.Time
	Status     RegistrationStatus
}

// AppliesOn reports whether the registration contributes to the roster on
// the given date.
func (r RegularRegistration) AppliesOn(date time.Time) bool {
	if r.Status != RegistrationActive {
		return false
	}
	if r.DaysMask&(1<<int(date.Weekday())) == 0 {
		return false
	}
	day := types.DateKey(date)
	if types.DateKey(r.ValidFrom) > day {
		return false
	}
	if r.ValidUntil != nil && types.DateKey(*r.ValidUntil) < day {
		return false
	}
	return true
}

// Absence suppresses a registration's contribution for one date. A nil
// TimetableID means every service the customer would normally ride that
// day. The registration itself is never touched.
type Absence struct {
	ID          types.ID
	CustomerID  types.ID
	AbsenceDate time.Time
	TimetableID *types.ID
	Reason      string
	Cancelled   bool
	CreatedAt   time.Time
}

// Covers reports whether the absence suppresses riders on this timetable.
func (a Absence) Covers(timetableID types.ID) bool {
	if a.Cancelled {
		return false
	}
	return a.TimetableID == nil || *a.TimetableID == timetableID
}

// Entry is one effective passenger: derived, never persisted as a source
// of truth.
type Entry struct {
	Ref        types.ID `json:"ref"`
	CustomerID types.ID `json:"customer_id"`
	SeatNumber string   `json:"seat_number,omitempty"`
	Wheelchair bool     `json:"wheelchair"`
	IsRegular  bool     `json:"is_regular"`
}

// Duplicate marks a one-off booking whose customer already rides as a
// regular on the same date. The registration wins; the booking is surfaced
// to staff rather than silently dropped.
type Duplicate struct {
	BookingID  types.ID `json:"booking_id"`
	CustomerID types.ID `json:"customer_id"`
}

// BookingEntry is the slice of a booking that matters to the roster.
type BookingEntry struct {
	BookingID  types.ID
	CustomerID types.ID
	SeatNumber string
	Wheelchair bool
}

// Result is the definitive roster for one service instance.
type Result struct {
	Entries    []Entry     `json:"entries"`
	Duplicates []Duplicate `json:"duplicates,omitempty"`
}

// Options controls which bookings count. Pending bookings contribute to
// occupancy pressure by default; fare finalization at completion uses
// ConfirmedOnly.
type Options struct {
	ConfirmedOnly bool
}
