package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solbushttp "solbus/internal/http"
	"solbus/internal/modules/booking"
	"solbus/internal/modules/fare"
	"solbus/internal/modules/occupancy"
	"solbus/internal/modules/roster"
	"solbus/internal/modules/surplus"
	"solbus/internal/modules/timetable"
	"solbus/internal/types"
)

type stubInstances struct {
	inst timetable.Instance
	err  error
}

func (s *stubInstances) Resolve(context.Context, types.ID, time.Time) (timetable.Instance, error) {
	return s.inst, s.err
}

type stubSeats struct {
	view occupancy.Snapshot
}

func (s *stubSeats) View(context.Context, timetable.Instance) (occupancy.Snapshot, error) {
	return s.view, nil
}

type stubRoster struct {
	result roster.Result
}

func (s *stubRoster) Resolve(context.Context, types.ID, time.Time, roster.Options) (roster.Result, error) {
	return s.result, nil
}

type stubQuoter struct {
	quote fare.Quote
	err   error
}

func (s *stubQuoter) Quote(context.Context, types.ID, time.Time, fare.Tier, bool) (fare.Quote, error) {
	return s.quote, s.err
}

type stubBookings struct {
	booking    *booking.Booking
	confirmErr error
	cancelErr  error
}

func (s *stubBookings) Create(_ context.Context, cmd booking.CreateCommand) (*booking.Booking, error) {
	b := &booking.Booking{
		ID:            "bk-1",
		TimetableID:   cmd.TimetableID,
		ServiceDate:   cmd.ServiceDate,
		CustomerID:    cmd.CustomerID,
		PassengerTier: cmd.PassengerTier,
		Status:        booking.StatusPending,
		PaymentStatus: booking.PaymentUnpaid,
	}
	s.booking = b
	return b, nil
}

func (s *stubBookings) Get(context.Context, types.ID) (*booking.Booking, error) {
	if s.booking == nil {
		return nil, booking.ErrNotFound
	}
	return s.booking, nil
}

func (s *stubBookings) FareSnapshot(context.Context, types.ID) (*booking.Snapshot, error) {
	return nil, booking.ErrNotFound
}

func (s *stubBookings) Confirm(context.Context, types.ID) (*booking.Booking, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	s.booking.Status = booking.StatusConfirmed
	return s.booking, nil
}

func (s *stubBookings) Cancel(context.Context, booking.CancelCommand) error { return s.cancelErr }
func (s *stubBookings) Complete(context.Context, types.ID) error            { return nil }
func (s *stubBookings) MarkNoShow(context.Context, types.ID) error          { return nil }
func (s *stubBookings) MarkPaid(context.Context, types.ID) error            { return nil }
func (s *stubBookings) Refund(context.Context, types.ID) error              { return nil }

type stubAbsences struct{}

func (stubAbsences) ReportAbsence(_ context.Context, cmd roster.ReportAbsenceCommand) (roster.Absence, error) {
	return roster.Absence{ID: "abs-1", CustomerID: cmd.CustomerID, AbsenceDate: cmd.AbsenceDate}, nil
}
func (stubAbsences) CancelAbsence(context.Context, types.ID) error { return nil }

type stubSurplus struct {
	alloc *surplus.Allocation
}

func (s *stubSurplus) Allocate(context.Context, types.ID, time.Time) (*surplus.Allocation, error) {
	return s.alloc, nil
}

func (s *stubSurplus) Get(context.Context, types.ID, time.Time) (*surplus.Allocation, error) {
	if s.alloc == nil {
		return nil, surplus.ErrNotFound
	}
	return s.alloc, nil
}

func (s *stubSurplus) LedgerForMember(context.Context, types.ID) ([]surplus.LedgerEntry, error) {
	return nil, nil
}

type routerFixture struct {
	engine   *gin.Engine
	bookings *stubBookings
	surplus  *stubSurplus
}

func newRouterFixture() *routerFixture {
	gin.SetMode(gin.TestMode)
	bookings := &stubBookings{}
	surplusStub := &stubSurplus{}
	quote := fare.Quote{
		QuotedFare:          types.Pence(800),
		BreakEvenPassengers: 15,
	}
	engine := solbushttp.NewRouter(solbushttp.RouterDeps{
		Instances:  &stubInstances{inst: timetable.Instance{TimetableID: "tt1", TotalSeats: 16}},
		Seats:      &stubSeats{view: occupancy.Snapshot{TotalSeats: 16, Occupied: 3, Available: 13}},
		Roster:     &stubRoster{},
		Quoter:     &stubQuoter{quote: quote},
		Bookings:   bookings,
		Absences:   stubAbsences{},
		Surplus:    surplusStub,
		StaffToken: "staff-secret",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &routerFixture{engine: engine, bookings: bookings, surplus: surplusStub}
}

func doRequest(engine *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestCreateBooking(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodPost, "/api/bookings", map[string]any{
		"timetable_id":   "tt1",
		"service_date":   "2026-03-02",
		"customer_id":    "cust-1",
		"passenger_tier": "adult",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "2026-03-02", resp["service_date"])
}

func TestCreateBookingMissingFields(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodPost, "/api/bookings", map[string]any{
		"timetable_id": "tt1",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmFullServiceReturnsConflict(t *testing.T) {
	f := newRouterFixture()
	doRequest(f.engine, http.MethodPost, "/api/bookings", map[string]any{
		"timetable_id":   "tt1",
		"service_date":   "2026-03-02",
		"customer_id":    "cust-1",
		"passenger_tier": "adult",
	}, "")
	f.bookings.confirmErr = occupancy.ErrCapacityExceeded

	w := doRequest(f.engine, http.MethodPost, "/api/bookings/bk-1/confirm", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelInsideCutoffReturnsUnprocessable(t *testing.T) {
	f := newRouterFixture()
	f.bookings.cancelErr = occupancy.ErrOutsideBookingWindow

	w := doRequest(f.engine, http.MethodPost, "/api/bookings/bk-1/cancel", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQuoteEndpoint(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodGet, "/api/services/tt1/instances/2026-03-02/quote?tier=adult&member=true", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 15, resp["break_even_passengers"])
}

func TestQuoteRejectsUnknownTier(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodGet, "/api/services/tt1/instances/2026-03-02/quote?tier=pensioner", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBadDateRejected(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodGet, "/api/services/tt1/instances/02-03-2026/quote", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManifestRequiresStaffToken(t *testing.T) {
	f := newRouterFixture()

	w := doRequest(f.engine, http.MethodGet, "/api/staff/services/tt1/instances/2026-03-02/manifest", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(f.engine, http.MethodGet, "/api/staff/services/tt1/instances/2026-03-02/manifest", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(f.engine, http.MethodGet, "/api/staff/services/tt1/instances/2026-03-02/manifest", nil, "staff-secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSurplusNotFound(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodGet, "/api/services/tt1/instances/2026-03-02/surplus", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReportAbsence(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodPost, "/api/absences", map[string]any{
		"customer_id":  "cust-1",
		"absence_date": "2026-03-02",
	}, "")
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRouteEstimateUnconfiguredReturns503(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodPost, "/api/staff/routes/estimate", map[string]any{
		"origin":      "Ashwell",
		"destination": "Baldock",
	}, "staff-secret")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	f := newRouterFixture()
	w := doRequest(f.engine, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
