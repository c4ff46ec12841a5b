package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrBadTimestamp = errors.New("bad timestamp")
	ErrBadPayload   = errors.New("bad payload")
)

// Rozsah offsetů skutečných časových pásem (UTC-12 až UTC+14).
const (
	minOffsetHours = -12
	maxOffsetHours = 14
)

// deviceTimeLayout je formát data a času, který posílají zařízení Irvine (bez části GMT).
const deviceTimeLayout = "2006-01-02 15:04:05"

// gmtOffset zachytí "GMT" + volitelné znaménko + počet hodin na konci řetězce.
var gmtOffset = regexp.MustCompile(`^(.+) GMT([+-]?\d+)$`)

// ParseDeviceTimestamp převede "YYYY-MM-DD HH:MM:SS GMT±H" na sekundy od epochy v UTC.
// Výsledek = lokální čas zařízení mínus offset v hodinách.
func ParseDeviceTimestamp(s string) (float64, error) {
	m := gmtOffset.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
	}

	offsetHours, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: offset %q: %v", ErrBadTimestamp, m[2], err)
	}
	if offsetHours < minOffsetHours || offsetHours > maxOffsetHours {
		return 0, fmt.Errorf("%w: offset %d mimo rozsah %d..%d", ErrBadTimestamp, offsetHours, minOffsetHours, maxOffsetHours)
	}

	local, err := time.ParseInLocation(deviceTimeLayout, m[1], time.UTC)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}

	utc := local.Add(-time.Duration(offsetHours) * time.Hour)
	return float64(utc.Unix()), nil
}

// Normalizer převádí payloady jednotlivých jmenných prostorů na Measurement.
// Clock je injektovaný kvůli testům (namespace measures bere čas příjmu).
type Normalizer struct {
	Now func() time.Time
}

// NewNormalizer vrací Normalizer s reálnými hodinami.
func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// FromJSON zpracuje payload z irvine/<device>/<type>:
// {"timestamp": "2024-03-01 10:00:00 GMT-1", "<type>": 87.5}
func (n *Normalizer) FromJSON(deviceID, measureType string, payload []byte) (Measurement, error) {
	mt, err := ParseMeasureType(measureType)
	if err != nil {
		return Measurement{}, err
	}

	var body map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Measurement{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	rawTS, ok := body["timestamp"]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	var tsStr string
	if err := json.Unmarshal(rawTS, &tsStr); err != nil {
		return Measurement{}, fmt.Errorf("%w: timestamp is not a string", ErrBadTimestamp)
	}
	ts, err := ParseDeviceTimestamp(tsStr)
	if err != nil {
		return Measurement{}, err
	}

	rawVal, ok := body[mt.PayloadKey()]
	if !ok {
		return Measurement{}, fmt.Errorf("%w: %s", ErrMissingField, mt.PayloadKey())
	}
	value, err := coerceValue(rawVal)
	if err != nil {
		return Measurement{}, err
	}

	return NewMeasurement(deviceID, mt, value, ts)
}

// FromScalar zpracuje payload z measures/... - holé číslo jako text.
// Zařízení zde čas neposílá, použijeme čas příjmu.
func (n *Normalizer) FromScalar(deviceID, measureType string, payload []byte) (Measurement, error) {
	mt, err := ParseMeasureType(measureType)
	if err != nil {
		return Measurement{}, err
	}

	raw := strings.TrimSpace(string(payload))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: %q", ErrBadValue, raw)
	}

	now := n.Now().UTC()
	ts := float64(now.Unix()) + float64(now.Nanosecond())/float64(time.Second)
	return NewMeasurement(deviceID, mt, value, ts)
}

// coerceValue přijme číslo i číslo zabalené do stringu ("87.5").
func coerceValue(raw json.RawMessage) (float64, error) {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		f, err := num.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrBadValue, raw)
		}
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadValue, raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, s)
	}
	return f, nil
}
