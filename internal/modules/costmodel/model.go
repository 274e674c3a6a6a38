// README: Trip cost rate card and breakdown definitions.
package costmodel

import "solbus/internal/types"

// RateCard holds a tenant's configured operating cost rates. Per-mile and
// per-hour rates are integer pence.
type RateCard struct {
	TenantID            types.ID
	WagePerHour         types.Money
	FuelPerMile         types.Money
	DepreciationPerMile types.Money
	InsurancePerTrip    types.Money
	MaintenancePerMile  types.Money
	OverheadPerTrip     types.Money
}

// RouteMetrics is the measured shape of one service run.
type RouteMetrics struct {
	RouteID       types.ID `json:"route_id,omitempty"`
	DistanceMiles float64  `json:"distance_miles"`
	DurationHours float64  `json:"duration_hours"`
}

// Breakdown is the real operating cost of one service run, itemized.
type Breakdown struct {
	DriverWages           types.Money `json:"driver_wages"`
	FuelCost              types.Money `json:"fuel_cost"`
	VehicleDepreciation   types.Money `json:"vehicle_depreciation"`
	InsuranceAllocation   types.Money `json:"insurance_allocation"`
	MaintenanceAllocation types.Money `json:"maintenance_allocation"`
	OverheadAllocation    types.Money `json:"overhead_allocation"`
	TotalTripCost         types.Money `json:"total_trip_cost"`
}
