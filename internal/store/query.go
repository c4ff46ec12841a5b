package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

var (
	// ErrInvalidBound: časová mez není konečné číslo.
	ErrInvalidBound = errors.New("invalid timestamp bound")

	ErrInvalidVehicleID = errors.New("invalid vehicle id")
)

// SecondsPerDay je délka okna denního dotazu.
const SecondsPerDay = 86400

const measurementsBaseSQL = `
	SELECT measures.measure_timestamp,
	       measures.measure_type,
	       measures.measure_value,
	       measures.device_id,
	       vehicles.vehicle_id,
	       vehicles.vehicle_name,
	       vehicles.vehicle_plate
	FROM measures
	LEFT JOIN devices ON measures.device_id = devices.device_id
	LEFT JOIN vehicles ON devices.vehicle_id = vehicles.vehicle_id`

// filters skládá WHERE klauzuli z dvojic (šablona predikátu, hodnota).
// Do textu dotazu jde jen šablona s číslem parametru, hodnoty vždy přes bind.
type filters struct {
	preds []string
	args  []any
}

// add připojí predikát. Šablona obsahuje právě jedno %d pro číslo parametru.
func (f *filters) add(template string, value any) {
	f.args = append(f.args, value)
	f.preds = append(f.preds, fmt.Sprintf(template, len(f.args)))
}

func (f *filters) render(base, suffix string) string {
	var sb strings.Builder
	sb.WriteString(base)
	if len(f.preds) > 0 {
		sb.WriteString("\n\tWHERE ")
		sb.WriteString(strings.Join(f.preds, "\n\t  AND "))
	}
	sb.WriteString(suffix)
	return sb.String()
}

// RangeQuery je dotaz přes více vozidel. Každý filtr je volitelný;
// chybějící (nil nebo prázdný) filtr se do dotazu vůbec nedostane.
type RangeQuery struct {
	VehicleIDs []int64
	From       *float64 // measure_timestamp > From
	To         *float64 // measure_timestamp < To
	Types      []telemetry.MeasureType
}

// Build vrátí parametrizovaný SQL dotaz a jeho argumenty.
func (rq RangeQuery) Build() (string, []any, error) {
	var f filters

	if len(rq.VehicleIDs) > 0 {
		f.add("vehicles.vehicle_id = ANY($%d)", rq.VehicleIDs)
	}
	if rq.From != nil {
		if !finite(*rq.From) {
			return "", nil, fmt.Errorf("%w: from=%v", ErrInvalidBound, *rq.From)
		}
		f.add("measures.measure_timestamp > $%d", *rq.From)
	}
	if rq.To != nil {
		if !finite(*rq.To) {
			return "", nil, fmt.Errorf("%w: to=%v", ErrInvalidBound, *rq.To)
		}
		f.add("measures.measure_timestamp < $%d", *rq.To)
	}
	if len(rq.Types) > 0 {
		types := make([]string, len(rq.Types))
		for i, t := range rq.Types {
			if _, err := telemetry.ParseMeasureType(string(t)); err != nil {
				return "", nil, err
			}
			types[i] = string(t)
		}
		f.add("measures.measure_type = ANY($%d)", types)
	}

	return f.render(measurementsBaseSQL, "\n\tORDER BY measures.measure_timestamp ASC"), f.args, nil
}

// DayQuery je dotaz na jedno vozidlo, jeden typ a jeden den.
// Okno je [DayStart, DayStart+86400), výsledek je vždy seřazený vzestupně podle času.
type DayQuery struct {
	VehicleID int64
	DayStart  float64
	Type      telemetry.MeasureType
}

// Build vrátí parametrizovaný SQL dotaz a jeho argumenty.
func (dq DayQuery) Build() (string, []any, error) {
	if !finite(dq.DayStart) {
		return "", nil, fmt.Errorf("%w: date=%v", ErrInvalidBound, dq.DayStart)
	}
	if _, err := telemetry.ParseMeasureType(string(dq.Type)); err != nil {
		return "", nil, err
	}

	var f filters
	f.add("vehicles.vehicle_id = $%d", dq.VehicleID)
	f.add("measures.measure_timestamp >= $%d", dq.DayStart)
	f.add("measures.measure_timestamp < $%d", dq.DayStart+SecondsPerDay)
	f.add("measures.measure_type = $%d", string(dq.Type))

	return f.render(measurementsBaseSQL, "\n\tORDER BY measures.measure_timestamp ASC"), f.args, nil
}

// Builder je společné rozhraní obou tvarů dotazu.
type Builder interface {
	Build() (string, []any, error)
}

// ErrQueryBuild obaluje chyby ze sestavení dotazu, aby je volající
// odlišil od chyb databáze (400 vs 500).
var ErrQueryBuild = errors.New("query build failed")

// QueryMeasurements sestaví dotaz a vrátí namapované řádky.
func (q *Queries) QueryMeasurements(ctx context.Context, b Builder) ([]MeasurementRow, error) {
	sql, args, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryBuild, err)
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("chyba načítání měření: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[MeasurementRow])
	if err != nil {
		return nil, fmt.Errorf("mapování měření: %w", err)
	}
	if out == nil {
		out = []MeasurementRow{}
	}
	return out, nil
}

// ParseBound převede parametr dateFrom/dateTo na mez. Prázdný řetězec = bez meze.
// Nečíselná hodnota je chyba, nikdy se tiše nezmění na "bez omezení".
func ParseBound(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !finite(v) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBound, raw)
	}
	return &v, nil
}

// ParseVehicleIDs převede "1,2,3" na seznam ID. Prázdný řetězec = bez filtru.
func ParseVehicleIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(raw) {
		id, err := ParseVehicleID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseVehicleID převede jedno ID vozidla.
func ParseVehicleID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidVehicleID, raw)
	}
	return id, nil
}

// ParseMeasureTypes převede "battery,temperature1" na seznam typů.
func ParseMeasureTypes(raw string) ([]telemetry.MeasureType, error) {
	var types []telemetry.MeasureType
	for _, part := range splitList(raw) {
		mt, err := telemetry.ParseMeasureType(part)
		if err != nil {
			return nil, err
		}
		types = append(types, mt)
	}
	return types, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
