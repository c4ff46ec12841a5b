package store

// Vehicle odpovídá řádku tabulky vehicles.
type Vehicle struct {
	ID    int64  `db:"vehicle_id" json:"vehicle_id"`
	Name  string `db:"vehicle_name" json:"vehicle_name"`
	Plate string `db:"vehicle_plate" json:"vehicle_plate"`
}

// Device odpovídá řádku tabulky devices.
// VehicleID a UserID jsou nil, dokud zařízení nikdo nepřiřadil.
type Device struct {
	ID        string  `db:"device_id" json:"device_id"`
	Type      string  `db:"device_type" json:"device_type"`
	VehicleID *int64  `db:"vehicle_id" json:"vehicle_id"`
	UserID    *string `db:"user_id" json:"user_id"`
}

// MeasurementRow je jeden řádek výsledku measures ⟕ devices ⟕ vehicles.
// Sloupce vozidla jsou nil u měření ze zařízení bez přiřazení.
type MeasurementRow struct {
	Timestamp    float64 `db:"measure_timestamp" json:"measure_timestamp"`
	Type         string  `db:"measure_type" json:"measure_type"`
	Value        float64 `db:"measure_value" json:"measure_value"`
	DeviceID     string  `db:"device_id" json:"device_id"`
	VehicleID    *int64  `db:"vehicle_id" json:"vehicle_id"`
	VehicleName  *string `db:"vehicle_name" json:"vehicle_name"`
	VehiclePlate *string `db:"vehicle_plate" json:"vehicle_plate"`
}
