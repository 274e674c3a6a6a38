// README: Capacity allocator types and error kinds.
package occupancy

import (
	"errors"

	"solbus/internal/types"
)

var (
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrOutsideBookingWindow = errors.New("outside booking window")
)

// Rider is one current seat holder, as loaded from the roster: a regular
// registration (customer ref) or a confirmed booking (booking ref).
type Rider struct {
	Ref        types.ID
	Wheelchair bool
}

// Request asks for one seat, optionally a wheelchair space. Ref identifies
// the booking so that retries re-acquire rather than double-book.
type Request struct {
	Ref        types.ID
	Wheelchair bool
}

// Reservation reports the occupancy observed at the instant the seat was
// granted. Fare computation for the same booking must use these counts.
type Reservation struct {
	Key                string
	Ref                types.ID
	Wheelchair         bool
	Occupied           int
	OccupiedWheelchair int
	Available          int
}

// Snapshot is a read of current counters, used by manifests and alerts.
type Snapshot struct {
	Key                 string `json:"key"`
	TotalSeats          int    `json:"total_seats"`
	WheelchairSpaces    int    `json:"wheelchair_spaces"`
	Occupied            int    `json:"occupied"`
	OccupiedWheelchair  int    `json:"occupied_wheelchair"`
	Available           int    `json:"available"`
	AvailableWheelchair int    `json:"available_wheelchair"`
}
