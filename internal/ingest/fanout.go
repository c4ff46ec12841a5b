package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/metrics"
	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

// Publisher je část mqtt.Client potřebná pro odesílání.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Resolver najde vozidlo, ke kterému zařízení patří.
type Resolver interface {
	ResolveVehicle(ctx context.Context, deviceID string) (vehicleID int64, ok bool, err error)
}

// LastValueWriter ukládá poslední hodnotu do hot cache.
type LastValueWriter interface {
	Put(ctx context.Context, m telemetry.Measurement) error
}

// FanoutMode určuje tvar výstupních topiců.
type FanoutMode string

const (
	// ModeSplit: vehicles/<id>/irvine_battery a vehicles/<id>/irvine_temperature1.
	ModeSplit FanoutMode = "split"

	// ModeCombined: jediný topic vehicles/<id>/irvine, nese jen teplotu.
	ModeCombined FanoutMode = "combined"
)

// ParseFanoutMode ověří hodnotu FANOUT_MODE.
func ParseFanoutMode(s string) (FanoutMode, error) {
	switch m := FanoutMode(s); m {
	case ModeSplit, ModeCombined:
		return m, nil
	}
	return "", fmt.Errorf("neznámý FANOUT_MODE %q (split|combined)", s)
}

// VehicleTopic vrací výstupní topic pro měření. ok == false znamená,
// že se daný typ v tomto režimu nerepublikuje.
func VehicleTopic(mode FanoutMode, vehicleID int64, mt telemetry.MeasureType) (string, bool) {
	id := strconv.FormatInt(vehicleID, 10)
	if mode == ModeCombined {
		if mt != telemetry.MeasureTemperature1 {
			return "", false
		}
		return "vehicles/" + id + "/irvine", true
	}
	return "vehicles/" + id + "/" + mt.VehicleTopicName(), true
}

// VehicleEvent je tělo zprávy na vehicles/...
type VehicleEvent struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// FanoutResult popisuje, co se s měřením na výstupu stalo.
type FanoutResult int

const (
	FanoutPublished FanoutResult = iota
	FanoutUnresolved
	FanoutSkipped
	FanoutFailed
)

func (r FanoutResult) String() string {
	switch r {
	case FanoutPublished:
		return "published"
	case FanoutUnresolved:
		return "unresolved"
	case FanoutSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// FanoutConfig jsou parametry Fanout.
type FanoutConfig struct {
	Mode    FanoutMode
	QoS     byte
	Timeout time.Duration // jak dlouho čekat na potvrzení publikace
}

// Fanout republikuje měření na topic vozidla s retain = true,
// aby nový odběratel dostal hned poslední hodnotu.
type Fanout struct {
	client   Publisher
	resolver Resolver
	last     LastValueWriter
	cfg      FanoutConfig
	metrics  *metrics.Ingest
	logger   zerolog.Logger

	inflight sync.WaitGroup
}

// NewFanout vytvoří Fanout. last a m mohou být nil.
func NewFanout(client Publisher, resolver Resolver, last LastValueWriter, cfg FanoutConfig, m *metrics.Ingest, logger zerolog.Logger) *Fanout {
	if cfg.Mode == "" {
		cfg.Mode = ModeSplit
	}
	return &Fanout{client: client, resolver: resolver, last: last, cfg: cfg, metrics: m, logger: logger}
}

// Publish dohledá vozidlo a odešle zprávu. Na potvrzení od brokera nečeká,
// token se vyhodnotí v samostatné goroutině. Chyby jen loguje.
func (f *Fanout) Publish(ctx context.Context, m telemetry.Measurement) FanoutResult {
	vehicleID, ok, err := f.resolver.ResolveVehicle(ctx, m.DeviceID)
	if err != nil {
		f.logger.Error().Err(err).Str("device_id", m.DeviceID).Msg("Nelze dohledat vozidlo zařízení")
		f.metrics.Published("error")
		return FanoutFailed
	}
	if !ok {
		f.logger.Info().Str("device_id", m.DeviceID).Msg("Zařízení nemá vozidlo, nepublikuji")
		f.metrics.Unresolved()
		return FanoutUnresolved
	}

	if f.last != nil {
		if err := f.last.Put(ctx, m); err != nil {
			f.logger.Warn().Err(err).Str("device_id", m.DeviceID).Msg("Poslední hodnotu nelze uložit do cache")
		}
	}

	topic, ok := VehicleTopic(f.cfg.Mode, vehicleID, m.Type)
	if !ok {
		return FanoutSkipped
	}

	body, err := json.Marshal(VehicleEvent{Timestamp: m.Timestamp, Value: m.Value})
	if err != nil {
		f.logger.Error().Err(err).Msg("Serializace události selhala")
		f.metrics.Published("error")
		return FanoutFailed
	}

	token := f.client.Publish(topic, f.cfg.QoS, true, body)
	f.inflight.Add(1)
	go f.await(token, topic)

	return FanoutPublished
}

func (f *Fanout) await(token mqtt.Token, topic string) {
	defer f.inflight.Done()

	if !token.WaitTimeout(f.cfg.Timeout) {
		f.logger.Error().Str("topic", topic).Dur("timeout", f.cfg.Timeout).Msg("Publikace nepotvrzena včas")
		f.metrics.Published("timeout")
		return
	}
	if err := token.Error(); err != nil {
		f.logger.Error().Err(err).Str("topic", topic).Msg("Chyba při publikaci do MQTT")
		f.metrics.Published("error")
		return
	}
	f.logger.Debug().Str("topic", topic).Msg("Událost vozidla odeslána")
	f.metrics.Published("ok")
}

// Wait počká na vyhodnocení všech rozpracovaných publikací.
func (f *Fanout) Wait() {
	f.inflight.Wait()
}
