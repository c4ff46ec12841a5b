package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

// ErrUnknownVehicle vrací AssignDevice, když vehicle_id neexistuje (porušení FK).
var ErrUnknownVehicle = errors.New("unknown vehicle")

// pgForeignKeyViolation je SQLSTATE pro porušení cizího klíče.
const pgForeignKeyViolation = "23503"

const resolveVehicleSQL = `SELECT vehicle_id FROM devices WHERE device_id = $1 LIMIT 1`

// ResolveVehicle najde vozidlo, ke kterému je zařízení právě přiřazené.
// ok == false znamená neznámé zařízení nebo zařízení bez vozidla, není to chyba.
func (q *Queries) ResolveVehicle(ctx context.Context, deviceID string) (int64, bool, error) {
	var vehicleID *int64
	err := q.db.QueryRow(ctx, resolveVehicleSQL, deviceID).Scan(&vehicleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("dotaz na vozidlo zařízení %s: %w", deviceID, err)
	}
	if vehicleID == nil {
		return 0, false, nil
	}
	return *vehicleID, true, nil
}

// ResolveVehicle se ptá databáze pokaždé znovu. Přiřazení se může mezi dvěma
// zprávami změnit, cache případně řeší vrstva nad tím.
func (s *Store) ResolveVehicle(ctx context.Context, deviceID string) (vehicleID int64, ok bool, err error) {
	err = s.Session(ctx, func(q *Queries) error {
		vehicleID, ok, err = q.ResolveVehicle(ctx, deviceID)
		return err
	})
	return vehicleID, ok, err
}

const listDevicesSQL = `
	SELECT device_id, device_type, vehicle_id, user_id
	FROM devices
	ORDER BY device_id ASC`

// ListDevices vrací všechna známá zařízení.
func (q *Queries) ListDevices(ctx context.Context) ([]Device, error) {
	rows, err := q.db.Query(ctx, listDevicesSQL)
	if err != nil {
		return nil, fmt.Errorf("selhal SQL dotaz na zařízení: %w", err)
	}
	devices, err := pgx.CollectRows(rows, pgx.RowToStructByName[Device])
	if err != nil {
		return nil, fmt.Errorf("mapování zařízení: %w", err)
	}
	return devices, nil
}

const assignDeviceSQL = `
	INSERT INTO devices (device_id, device_type, vehicle_id, user_id)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (device_id) DO UPDATE
	SET device_type = EXCLUDED.device_type,
	    vehicle_id  = EXCLUDED.vehicle_id,
	    user_id     = EXCLUDED.user_id`

// AssignDevice přiřadí zařízení k vozidlu. Pozdější přiřazení úplně nahradí
// dřívější (typ, vozidlo i uživatele), řádek pro device_id je vždy jen jeden.
func (q *Queries) AssignDevice(ctx context.Context, deviceID string, vehicleID int64, userID string) error {
	family := telemetry.ClassifyDevice(deviceID)
	_, err := q.db.Exec(ctx, assignDeviceSQL, deviceID, string(family), vehicleID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("%w: %d", ErrUnknownVehicle, vehicleID)
		}
		return fmt.Errorf("přiřazení zařízení %s: %w", deviceID, err)
	}
	return nil
}
