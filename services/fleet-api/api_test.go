package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikandrzej/wiwik-app-server/internal/store"
	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

type assignCall struct {
	deviceID  string
	vehicleID int64
	userID    string
}

type fakeService struct {
	vehicles []store.Vehicle
	devices  []DeviceDTO
	rows     []store.MeasurementRow
	err      error

	builders []store.Builder
	assigned []assignCall
	added    []string
}

func (f *fakeService) Vehicles(context.Context) ([]store.Vehicle, error) { return f.vehicles, f.err }
func (f *fakeService) Devices(context.Context) ([]DeviceDTO, error)      { return f.devices, f.err }

func (f *fakeService) Measurements(_ context.Context, b store.Builder) ([]store.MeasurementRow, error) {
	f.builders = append(f.builders, b)
	// stejně jako Queries.QueryMeasurements: chyba sestavení má přednost
	if _, _, err := b.Build(); err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrQueryBuild, err)
	}
	return f.rows, f.err
}

func (f *fakeService) AssignDevice(_ context.Context, deviceID string, vehicleID int64, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.assigned = append(f.assigned, assignCall{deviceID, vehicleID, userID})
	return nil
}

func (f *fakeService) AddVehicle(_ context.Context, name, plate, _ string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.added = append(f.added, name+"/"+plate)
	return int64(len(f.added)), nil
}

type fixedClock int64

func (c fixedClock) Seconds() int64 { return int64(c) }

func newTestRouter(svc fleetService) http.Handler {
	return NewAPIHandler(svc, fixedClock(4242), zerolog.Nop()).Router(nil, nil, 5*time.Second)
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetVehicles(t *testing.T) {
	svc := &fakeService{vehicles: []store.Vehicle{{ID: 5, Name: "Transit", Plate: "1AB 2345"}}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/api/getVehicles", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"vehicle_id":5,"vehicle_name":"Transit","vehicle_plate":"1AB 2345"}]`, rec.Body.String())
}

func TestGetDevicesStoreError(t *testing.T) {
	svc := &fakeService{err: errors.New("db down")}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/api/getDevices", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestGetVehicleTempDataBuildsRangeQuery(t *testing.T) {
	svc := &fakeService{rows: []store.MeasurementRow{}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/api/getVehicleTempData?vehicles=1,2&dateFrom=100&dateTo=200", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.Len(t, svc.builders, 1)
	q := svc.builders[0].(store.RangeQuery)
	assert.Equal(t, []int64{1, 2}, q.VehicleIDs)
	require.NotNil(t, q.From)
	require.NotNil(t, q.To)
	assert.Equal(t, 100.0, *q.From)
	assert.Equal(t, 200.0, *q.To)
	assert.Equal(t, []telemetry.MeasureType{telemetry.MeasureTemperature1}, q.Types)
}

func TestGetVehicleMeasurementsNoFilters(t *testing.T) {
	svc := &fakeService{rows: []store.MeasurementRow{}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/api/getVehicleMeasurements", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	q := svc.builders[0].(store.RangeQuery)
	assert.Empty(t, q.VehicleIDs)
	assert.Nil(t, q.From)
	assert.Nil(t, q.To)
	assert.Empty(t, q.Types)
}

func TestMeasurementQueryBadParameters(t *testing.T) {
	for _, target := range []string{
		"/api/getVehicleTempData?dateFrom=yesterday",
		"/api/getVehicleTempData?dateTo=NaN",
		"/api/getVehicleTempData?vehicles=1,x",
		"/api/getVehicleMeasurements?types=battery,humidity",
		"/api/getVehicleDayData?vehicle_id=5",
		"/api/getVehicleDayData?date=1709251200",
		"/api/getVehicleDayData?vehicle_id=five&date=1709251200",
		"/api/getVehicleDayData?vehicle_id=5&date=today",
		"/api/getVehicleDayData?vehicle_id=5&date=1709251200&type=humidity",
	} {
		t.Run(target, func(t *testing.T) {
			svc := &fakeService{}
			rec := do(t, newTestRouter(svc), http.MethodGet, target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.builders)
		})
	}
}

func TestGetVehicleDayData(t *testing.T) {
	svc := &fakeService{rows: []store.MeasurementRow{{Timestamp: 1709251300, Type: "battery", Value: 80, DeviceID: "irvine-07"}}}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/api/getVehicleDayData?vehicle_id=5&date=1709251200&type=battery", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, store.DayQuery{VehicleID: 5, DayStart: 1709251200, Type: telemetry.MeasureBattery}, svc.builders[0])
	assert.Contains(t, rec.Body.String(), `"measure_timestamp":1709251300`)

	do(t, newTestRouter(svc), http.MethodGet, "/api/getVehicleDayData?vehicle_id=5&date=1709251200", nil)
	assert.Equal(t, telemetry.MeasureTemperature1, svc.builders[1].(store.DayQuery).Type)
}

func TestMeasurementStoreErrorIs500(t *testing.T) {
	svc := &fakeService{err: errors.New("connection reset")}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/api/getVehicleMeasurements?vehicles=5", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAssignDevice(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/api/assignDeviceToVehicle?device_id=irvine-07&vehicle_id=5&user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/assignDeviceToVehicle", url.Values{
		"device_id": {"irvine-07"}, "vehicle_id": {"9"}, "user_id": {"u2"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []assignCall{{"irvine-07", 5, "u1"}, {"irvine-07", 9, "u2"}}, svc.assigned)
}

func TestAssignDeviceClientErrors(t *testing.T) {
	for _, target := range []string{
		"/api/assignDeviceToVehicle?vehicle_id=5&user_id=u1",
		"/api/assignDeviceToVehicle?device_id=irvine-07&user_id=u1",
		"/api/assignDeviceToVehicle?device_id=irvine-07&vehicle_id=5",
		"/api/assignDeviceToVehicle?device_id=%20&vehicle_id=5&user_id=u1",
		"/api/assignDeviceToVehicle?device_id=irvine-07&vehicle_id=abc&user_id=u1",
	} {
		t.Run(target, func(t *testing.T) {
			svc := &fakeService{}
			rec := do(t, newTestRouter(svc), http.MethodGet, target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.assigned)
		})
	}
}

func TestAssignDeviceErrorMapping(t *testing.T) {
	target := "/api/assignDeviceToVehicle?device_id=irvine-07&vehicle_id=404&user_id=u1"

	rec := do(t, newTestRouter(&fakeService{err: fmt.Errorf("%w: 404", store.ErrUnknownVehicle)}), http.MethodGet, target, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, newTestRouter(&fakeService{err: errors.New("db down")}), http.MethodGet, target, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAddVehicle(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodPost, "/api/addVehicle", url.Values{
		"veh_name": {"Transit"}, "plate_no": {"1AB 2345"}, "user_id": {"u1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Success","vehicle_id":1}`, rec.Body.String())
	assert.Equal(t, []string{"Transit/1AB 2345"}, svc.added)

	rec = do(t, h, http.MethodGet, "/api/addVehicle?veh_name=Transit&plate_no=1AB", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_id")

	rec = do(t, newTestRouter(&fakeService{err: errors.New("db down")}), http.MethodGet, "/api/addVehicle?veh_name=A&plate_no=B&user_id=u", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetUptimeAndHealth(t *testing.T) {
	h := newTestRouter(&fakeService{})

	rec := do(t, h, http.MethodGet, "/api/getUptime", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "4242", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCorsPreflight(t *testing.T) {
	rec := do(t, newTestRouter(&fakeService{}), http.MethodOptions, "/api/getVehicles", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
