// README: Surplus split records and member dividend ledger entries.
package surplus

import (
	"errors"
	"time"

	"solbus/internal/types"
)

var (
	ErrNotFound         = errors.New("surplus allocation not found")
	ErrAlreadyAllocated = errors.New("surplus already allocated for instance")
)

// Allocation is the settled surplus split for one service instance. One
// allocation per (timetable, date); re-running settlement returns the
// existing record.
type Allocation struct {
	ID          types.ID  `json:"id"`
	TimetableID types.ID  `json:"timetable_id"`
	ServiceDate time.Time `json:"service_date"`

	ConfirmedFareTotal types.Money `json:"confirmed_fare_total"`
	TripCost           types.Money `json:"trip_cost"`
	Surplus            types.Money `json:"surplus"`

	ToReserves  types.Money `json:"to_reserves"`
	ToBusiness  types.Money `json:"to_business"`
	ToDividends types.Money `json:"to_dividends"`

	CreatedAt time.Time `json:"created_at"`
}

// LedgerEntry credits one member their share of an allocation's dividend
// pot. Entries are append-only.
type LedgerEntry struct {
	ID           types.ID    `json:"id"`
	AllocationID types.ID    `json:"allocation_id"`
	CustomerID   types.ID    `json:"customer_id"`
	Amount       types.Money `json:"amount"`
	Trips        int         `json:"trips"`
	CreatedAt    time.Time   `json:"created_at"`
}

// MemberTrips is one member's confirmed ridership over the dividend
// qualification window.
type MemberTrips struct {
	CustomerID types.ID
	Trips      int
}
