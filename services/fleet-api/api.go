package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/metrics"
	"github.com/mikandrzej/wiwik-app-server/internal/store"
	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

// ErrMissingParameter: povinný parametr chybí nebo je prázdný.
var ErrMissingParameter = errors.New("missing parameter")

// fleetService je to, co handlery potřebují od Service.
type fleetService interface {
	Vehicles(ctx context.Context) ([]store.Vehicle, error)
	Devices(ctx context.Context) ([]DeviceDTO, error)
	Measurements(ctx context.Context, b store.Builder) ([]store.MeasurementRow, error)
	AssignDevice(ctx context.Context, deviceID string, vehicleID int64, userID string) error
	AddVehicle(ctx context.Context, name, plate, userID string) (int64, error)
}

// uptimeClock vrací uptime procesu v celých sekundách.
type uptimeClock interface {
	Seconds() int64
}

// APIHandler sdružuje HTTP handlery API.
type APIHandler struct {
	svc    fleetService
	clock  uptimeClock
	logger zerolog.Logger
}

func NewAPIHandler(svc fleetService, clock uptimeClock, logger zerolog.Logger) *APIHandler {
	return &APIHandler{svc: svc, clock: clock, logger: logger}
}

// Router sestaví chi router se všemi endpointy a middlewary.
func (h *APIHandler) Router(m *metrics.API, metricsHandler http.Handler, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(m.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Get("/getVehicles", h.handleGetVehicles)
		r.Get("/getDevices", h.handleGetDevices)
		r.Get("/getVehicleTempData", h.handleGetVehicleTempData)
		r.Get("/getVehicleMeasurements", h.handleGetVehicleMeasurements)
		r.Get("/getVehicleDayData", h.handleGetVehicleDayData)
		r.Get("/getUptime", h.handleGetUptime)

		// Mutace berou parametry z query stringu i z POST formuláře.
		r.Get("/assignDeviceToVehicle", h.handleAssignDevice)
		r.Post("/assignDeviceToVehicle", h.handleAssignDevice)
		r.Get("/addVehicle", h.handleAddVehicle)
		r.Post("/addVehicle", h.handleAddVehicle)
	})
	return r
}

// GET /api/getVehicles
func (h *APIHandler) handleGetVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.svc.Vehicles(r.Context())
	if err != nil {
		h.serverError(w, r, "Chyba při získávání vozidel", err)
		return
	}
	h.writeJSON(w, vehicles)
}

// GET /api/getDevices
func (h *APIHandler) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.Devices(r.Context())
	if err != nil {
		h.serverError(w, r, "Chyba při získávání zařízení", err)
		return
	}
	h.writeJSON(w, devices)
}

// GET /api/getVehicleTempData?vehicles=1,2&dateFrom=&dateTo=
func (h *APIHandler) handleGetVehicleTempData(w http.ResponseWriter, r *http.Request) {
	q, err := rangeQueryFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q.Types = []telemetry.MeasureType{telemetry.MeasureTemperature1}
	h.queryMeasurements(w, r, q)
}

// GET /api/getVehicleMeasurements?vehicles=&dateFrom=&dateTo=&types=battery,temperature1
func (h *APIHandler) handleGetVehicleMeasurements(w http.ResponseWriter, r *http.Request) {
	q, err := rangeQueryFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.Types, err = store.ParseMeasureTypes(r.FormValue("types")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.queryMeasurements(w, r, q)
}

// GET /api/getVehicleDayData?vehicle_id=5&date=<epoch>&type=temperature1
func (h *APIHandler) handleGetVehicleDayData(w http.ResponseWriter, r *http.Request) {
	params, err := required(r, "vehicle_id", "date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vehicleID, err := store.ParseVehicleID(params["vehicle_id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dayStart, err := store.ParseBound(params["date"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mt := telemetry.MeasureTemperature1
	if raw := strings.TrimSpace(r.FormValue("type")); raw != "" {
		if mt, err = telemetry.ParseMeasureType(raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	h.queryMeasurements(w, r, store.DayQuery{VehicleID: vehicleID, DayStart: *dayStart, Type: mt})
}

// /api/assignDeviceToVehicle?device_id=&vehicle_id=&user_id=
func (h *APIHandler) handleAssignDevice(w http.ResponseWriter, r *http.Request) {
	params, err := required(r, "device_id", "vehicle_id", "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vehicleID, err := store.ParseVehicleID(params["vehicle_id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.svc.AssignDevice(r.Context(), params["device_id"], vehicleID, params["user_id"])
	if errors.Is(err, store.ErrUnknownVehicle) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.serverError(w, r, "Chyba při přiřazení zařízení", err)
		return
	}
	_, _ = w.Write([]byte("Success"))
}

// /api/addVehicle?veh_name=&plate_no=&user_id=
func (h *APIHandler) handleAddVehicle(w http.ResponseWriter, r *http.Request) {
	params, err := required(r, "veh_name", "plate_no", "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.svc.AddVehicle(r.Context(), params["veh_name"], params["plate_no"], params["user_id"])
	if err != nil {
		h.serverError(w, r, "Chyba při přidání vozidla", err)
		return
	}
	h.writeJSON(w, map[string]any{"status": "Success", "vehicle_id": id})
}

// GET /api/getUptime
func (h *APIHandler) handleGetUptime(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatInt(h.clock.Seconds(), 10)))
}

func (h *APIHandler) queryMeasurements(w http.ResponseWriter, r *http.Request, b store.Builder) {
	rows, err := h.svc.Measurements(r.Context(), b)
	if errors.Is(err, store.ErrQueryBuild) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.serverError(w, r, "Chyba při načítání měření", err)
		return
	}
	h.writeJSON(w, rows)
}

func (h *APIHandler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg(msg)
	http.Error(w, "Interní chyba serveru", http.StatusInternalServerError)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Chyba při zápisu JSON odpovědi")
	}
}

// rangeQueryFromRequest přečte vehicles, dateFrom a dateTo. Všechny jsou volitelné.
func rangeQueryFromRequest(r *http.Request) (store.RangeQuery, error) {
	var (
		q   store.RangeQuery
		err error
	)
	if q.VehicleIDs, err = store.ParseVehicleIDs(r.FormValue("vehicles")); err != nil {
		return store.RangeQuery{}, err
	}
	if q.From, err = store.ParseBound(r.FormValue("dateFrom")); err != nil {
		return store.RangeQuery{}, err
	}
	if q.To, err = store.ParseBound(r.FormValue("dateTo")); err != nil {
		return store.RangeQuery{}, err
	}
	return q, nil
}

// required vrátí oříznuté hodnoty parametrů, nebo ErrMissingParameter
// se jménem prvního chybějícího.
func required(r *http.Request, names ...string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v := strings.TrimSpace(r.FormValue(name))
		if v == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, name)
		}
		out[name] = v
	}
	return out, nil
}

// CorsMiddleware povolí volání API z dashboardu běžícího na jiné doméně.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
