package store

import (
	"context"
	"fmt"

	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

const registerDeviceSQL = `
	INSERT INTO devices (device_id, device_type)
	VALUES ($1, $2)
	ON CONFLICT (device_id) DO NOTHING`

const insertMeasureSQL = `
	INSERT INTO measures (measure_timestamp, measure_type, measure_value, device_id)
	VALUES ($1, $2, $3, $4)`

// SaveMeasurement zapíše měření a případně zaregistruje neznámé zařízení.
//
// Jsou to dva samostatné auto-commit příkazy, žádná transakce. Existující
// zařízení se nepřepisuje (typ, vozidlo ani uživatel). Při pádu mezi nimi
// může zůstat zařízení bez prvního měření.
func (q *Queries) SaveMeasurement(ctx context.Context, m telemetry.Measurement) error {
	family := telemetry.ClassifyDevice(m.DeviceID)
	if _, err := q.db.Exec(ctx, registerDeviceSQL, m.DeviceID, string(family)); err != nil {
		return fmt.Errorf("registrace zařízení %s: %w", m.DeviceID, err)
	}

	if _, err := q.db.Exec(ctx, insertMeasureSQL, m.Timestamp, string(m.Type), m.Value, m.DeviceID); err != nil {
		return fmt.Errorf("chyba insertu měření: %w", err)
	}
	return nil
}

// SaveMeasurement je varianta pro ingestor: jedno spojení na jednu zprávu.
func (s *Store) SaveMeasurement(ctx context.Context, m telemetry.Measurement) error {
	return s.Session(ctx, func(q *Queries) error {
		return q.SaveMeasurement(ctx, m)
	})
}
