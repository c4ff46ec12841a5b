package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const listVehiclesSQL = `
	SELECT vehicle_id, vehicle_name, vehicle_plate
	FROM vehicles
	ORDER BY vehicle_id ASC`

// ListVehicles vrací všechna vozidla.
func (q *Queries) ListVehicles(ctx context.Context) ([]Vehicle, error) {
	rows, err := q.db.Query(ctx, listVehiclesSQL)
	if err != nil {
		return nil, fmt.Errorf("selhal SQL dotaz na vozidla: %w", err)
	}
	vehicles, err := pgx.CollectRows(rows, pgx.RowToStructByName[Vehicle])
	if err != nil {
		return nil, fmt.Errorf("mapování vozidel: %w", err)
	}
	return vehicles, nil
}

const addVehicleSQL = `
	INSERT INTO vehicles (vehicle_name, vehicle_plate)
	VALUES ($1, $2)
	RETURNING vehicle_id`

// AddVehicle založí vozidlo a vrátí ID přidělené databází.
func (q *Queries) AddVehicle(ctx context.Context, name, plate string) (int64, error) {
	var id int64
	if err := q.db.QueryRow(ctx, addVehicleSQL, name, plate).Scan(&id); err != nil {
		return 0, fmt.Errorf("chyba insertu vozidla: %w", err)
	}
	return id, nil
}
