package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/cache"
	"github.com/mikandrzej/wiwik-app-server/internal/store"
	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

// DeviceDTO je zařízení obohacené o poslední hodnoty z Valkey.
type DeviceDTO struct {
	store.Device

	// LastValues chybí, pokud zařízení 24 h nic neposlalo nebo Valkey neodpovídá.
	LastValues map[telemetry.MeasureType]cache.LastValue `json:"last_values,omitempty"`
}

// lastValueReader čte hot cache posledních hodnot.
type lastValueReader interface {
	Get(ctx context.Context, deviceID string) (map[telemetry.MeasureType]cache.LastValue, error)
}

// invalidator maže cache přiřazení zařízení k vozidlu.
type invalidator interface {
	Invalidate(ctx context.Context, deviceID string) error
}

// Service spojuje Postgres a Valkey. Každá metoda si přes Session půjčí
// vlastní spojení z poolu a před návratem ho vrátí.
type Service struct {
	db       *store.Store
	last     lastValueReader
	resolver invalidator
	logger   zerolog.Logger
}

func NewService(db *store.Store, last lastValueReader, resolver invalidator, logger zerolog.Logger) *Service {
	return &Service{db: db, last: last, resolver: resolver, logger: logger}
}

func (s *Service) Vehicles(ctx context.Context) (vehicles []store.Vehicle, err error) {
	err = s.db.Session(ctx, func(q *store.Queries) error {
		vehicles, err = q.ListVehicles(ctx)
		return err
	})
	return vehicles, err
}

// Devices vrací zařízení z DB. Chyba Valkey výpis nezastaví, jen chybí poslední hodnoty.
func (s *Service) Devices(ctx context.Context) ([]DeviceDTO, error) {
	var devices []store.Device
	err := s.db.Session(ctx, func(q *store.Queries) error {
		var err error
		devices, err = q.ListDevices(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]DeviceDTO, 0, len(devices))
	for _, d := range devices {
		dto := DeviceDTO{Device: d}
		last, err := s.last.Get(ctx, d.ID)
		if err != nil {
			s.logger.Warn().Err(err).Str("device_id", d.ID).Msg("Poslední hodnoty nejsou k dispozici")
		} else if len(last) > 0 {
			dto.LastValues = last
		}
		out = append(out, dto)
	}
	return out, nil
}

func (s *Service) Measurements(ctx context.Context, b store.Builder) (rows []store.MeasurementRow, err error) {
	err = s.db.Session(ctx, func(q *store.Queries) error {
		rows, err = q.QueryMeasurements(ctx, b)
		return err
	})
	return rows, err
}

// AssignDevice přepíše přiřazení zařízení a smaže ho z cache ingestoru,
// aby další měření šlo už na nové vozidlo.
func (s *Service) AssignDevice(ctx context.Context, deviceID string, vehicleID int64, userID string) error {
	err := s.db.Session(ctx, func(q *store.Queries) error {
		return q.AssignDevice(ctx, deviceID, vehicleID, userID)
	})
	if err != nil {
		return err
	}
	if err := s.resolver.Invalidate(ctx, deviceID); err != nil {
		// Záznam v cache vyprší sám po RESOLVER_CACHE_TTL.
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("Invalidace cache selhala")
	}
	return nil
}

// AddVehicle založí vozidlo. Tabulka vehicles vlastníka nemá, userID se jen loguje.
func (s *Service) AddVehicle(ctx context.Context, name, plate, userID string) (id int64, err error) {
	err = s.db.Session(ctx, func(q *store.Queries) error {
		id, err = q.AddVehicle(ctx, name, plate)
		return err
	})
	if err == nil {
		s.logger.Info().Int64("vehicle_id", id).Str("user_id", userID).Msg("Vozidlo přidáno")
	}
	return id, err
}
