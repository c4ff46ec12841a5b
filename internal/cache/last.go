package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

// LastValueTTL: po této době bez nového měření hodnota z cache zmizí.
const LastValueTTL = 24 * time.Hour

// LastValue je poslední známá hodnota jednoho typu měření.
type LastValue struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// LastKey je klíč poslední hodnoty zařízení a typu.
func LastKey(deviceID string, mt telemetry.MeasureType) string {
	return fmt.Sprintf("device:last:%s:%s", deviceID, mt)
}

// LastValues je "hot storage" posledních hodnot pro výpis zařízení.
type LastValues struct {
	kv KV
}

func NewLastValues(kv KV) *LastValues {
	return &LastValues{kv: kv}
}

// Put přepíše poslední hodnotu daného zařízení a typu.
func (l *LastValues) Put(ctx context.Context, m telemetry.Measurement) error {
	body, err := json.Marshal(LastValue{Timestamp: m.Timestamp, Value: m.Value})
	if err != nil {
		return err
	}
	if err := l.kv.Set(ctx, LastKey(m.DeviceID, m.Type), body, LastValueTTL).Err(); err != nil {
		return fmt.Errorf("chyba update Valkey: %w", err)
	}
	return nil
}

// Get vrací poslední hodnoty zařízení podle typu. Chybějící typy v mapě nejsou.
func (l *LastValues) Get(ctx context.Context, deviceID string) (map[telemetry.MeasureType]LastValue, error) {
	types := telemetry.MeasureTypes()
	keys := make([]string, len(types))
	for i, mt := range types {
		keys[i] = LastKey(deviceID, mt)
	}

	vals, err := l.kv.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("čtení posledních hodnot %s: %w", deviceID, err)
	}

	out := make(map[telemetry.MeasureType]LastValue, len(types))
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok {
			continue // klíč neexistuje nebo expiroval
		}
		var lv LastValue
		if err := json.Unmarshal([]byte(s), &lv); err != nil {
			continue
		}
		out[types[i]] = lv
	}
	return out, nil
}
