// Package telemetry obsahuje doménový model měření a převod příchozích
// MQTT zpráv (topic + payload) na kanonický záznam Measurement.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

var (
	// ErrUnknownMeasureType: typ měření, který neumíme zpracovat. Zpráva se zahazuje.
	ErrUnknownMeasureType = errors.New("unknown measure type")

	// ErrUnknownDeviceFamily: prefix ID zařízení (nebo device_type v topicu) neodpovídá žádné známé rodině.
	ErrUnknownDeviceFamily = errors.New("unknown device family")

	ErrBadValue = errors.New("measure value is not a finite number")
)

// MeasureType je tag typu měření (např. "battery").
type MeasureType string

const (
	MeasureBattery      MeasureType = "battery"
	MeasureTemperature1 MeasureType = "temperature1"
)

// measureInfo popisuje, jak se daný typ čte z payloadu a kam se republikuje.
type measureInfo struct {
	payloadKey   string // klíč hodnoty v JSON payloadu
	vehicleTopic string // poslední segment výstupního topicu vehicles/<id>/...
}

// measureTable je uzavřená tabulka podporovaných typů.
// Nový typ = nový řádek zde, nic dalšího.
var measureTable = map[MeasureType]measureInfo{
	MeasureBattery:      {payloadKey: "battery", vehicleTopic: "irvine_battery"},
	MeasureTemperature1: {payloadKey: "temperature1", vehicleTopic: "irvine_temperature1"},
}

// ParseMeasureType ověří, že tag patří do známé množiny.
func ParseMeasureType(s string) (MeasureType, error) {
	mt := MeasureType(s)
	if _, ok := measureTable[mt]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMeasureType, s)
	}
	return mt, nil
}

// PayloadKey vrací název JSON klíče, pod kterým zařízení posílá hodnotu.
func (m MeasureType) PayloadKey() string {
	return measureTable[m].payloadKey
}

// VehicleTopicName vrací normalizovaný název pro topic vehicles/<id>/<name>.
func (m MeasureType) VehicleTopicName() string {
	return measureTable[m].vehicleTopic
}

// MeasureTypes vrací všechny podporované typy seřazené podle názvu.
func MeasureTypes() []MeasureType {
	out := make([]MeasureType, 0, len(measureTable))
	for mt := range measureTable {
		out = append(out, mt)
	}
	slices.Sort(out)
	return out
}

// DeviceFamily je rodina zařízení odvozená z prefixu ID.
type DeviceFamily string

const (
	FamilyIrvine DeviceFamily = "irvine"

	// FamilyUnknown se ukládá jako device_type u zařízení, které jsme nepoznali.
	FamilyUnknown DeviceFamily = "unknown"
)

// knownFamilies drží rozpoznávané prefixy. Pořadí je důležité při překryvu prefixů.
var knownFamilies = []DeviceFamily{FamilyIrvine}

// ClassifyDevice odvodí rodinu zařízení z prefixu jeho ID.
// Pro nerozpoznaný prefix vrací FamilyUnknown.
func ClassifyDevice(deviceID string) DeviceFamily {
	for _, f := range knownFamilies {
		if strings.HasPrefix(deviceID, string(f)) {
			return f
		}
	}
	return FamilyUnknown
}

// ParseDeviceFamily ověří device_type z topicu measures/... proti známým rodinám.
func ParseDeviceFamily(s string) (DeviceFamily, error) {
	for _, f := range knownFamilies {
		if s == string(f) {
			return f, nil
		}
	}
	return FamilyUnknown, fmt.Errorf("%w: %q", ErrUnknownDeviceFamily, s)
}

// Measurement je kanonický záznam jednoho měření.
// Předává se hodnotou a po vytvoření se už nemění.
type Measurement struct {
	DeviceID string      `json:"device_id"`
	Type     MeasureType `json:"measure_type"`
	Value    float64     `json:"value"`

	// Timestamp: sekundy od epochy (UTC), může mít desetinnou část.
	Timestamp float64 `json:"timestamp"`
}

// NewMeasurement sestaví Measurement a zkontroluje invarianty.
func NewMeasurement(deviceID string, mt MeasureType, value, timestamp float64) (Measurement, error) {
	if deviceID == "" {
		return Measurement{}, fmt.Errorf("%w: device_id", ErrMissingField)
	}
	if _, ok := measureTable[mt]; !ok {
		return Measurement{}, fmt.Errorf("%w: %q", ErrUnknownMeasureType, mt)
	}
	if !isFinite(value) {
		return Measurement{}, fmt.Errorf("%w: %v", ErrBadValue, value)
	}
	if !isFinite(timestamp) {
		return Measurement{}, fmt.Errorf("%w: %v", ErrBadTimestamp, timestamp)
	}
	return Measurement{DeviceID: deviceID, Type: mt, Value: value, Timestamp: timestamp}, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
