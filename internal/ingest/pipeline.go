// Package ingest zpracovává příchozí MQTT zprávy: dekóduje topic,
// normalizuje měření, republikuje ho na topic vozidla a uloží do databáze.
//
// Zprávy se zpracovávají po jedné. Žádná chyba jedné zprávy nezastaví další,
// Handle proto chyby nevrací, jen je loguje a započítá.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/metrics"
	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

// ErrBadUptime: payload $SYS/broker/uptime není "<n> seconds".
var ErrBadUptime = errors.New("malformed broker uptime")

// Sink ukládá měření. Implementuje ho store.Store.
type Sink interface {
	SaveMeasurement(ctx context.Context, m telemetry.Measurement) error
}

// Outcome shrnuje, co se se zprávou stalo.
type Outcome struct {
	Kind telemetry.TopicKind

	// Dropped je nenil, když zpráva neprošla dekódováním nebo normalizací.
	Dropped error

	Measurement *telemetry.Measurement
	Fanout      FanoutResult
	Persisted   bool
	PersistErr  error
}

// Pipeline spojuje dekodér, normalizer, fan-out a zápis do DB.
type Pipeline struct {
	normalizer *telemetry.Normalizer
	fanout     *Fanout
	sink       Sink
	metrics    *metrics.Ingest
	logger     zerolog.Logger
}

// NewPipeline vytvoří pipeline. m může být nil.
func NewPipeline(normalizer *telemetry.Normalizer, fanout *Fanout, sink Sink, m *metrics.Ingest, logger zerolog.Logger) *Pipeline {
	return &Pipeline{normalizer: normalizer, fanout: fanout, sink: sink, metrics: m, logger: logger}
}

// Handle zpracuje jednu zprávu celou, než se vrátí.
func (p *Pipeline) Handle(ctx context.Context, topic string, payload []byte) Outcome {
	// 1. Topic
	// Neznámý kořen nebo špatný tvar se zahodí ještě před čtením payloadu.
	t, err := telemetry.DecodeTopic(topic)
	if err != nil {
		return p.drop(Outcome{}, topic, err)
	}
	out := Outcome{Kind: t.Kind}
	p.metrics.Received(t.Kind.String())

	// 2. Payload podle jmenného prostoru
	// irvine nese JSON s časem zařízení, measures holé číslo (čas = příjem),
	// $SYS/broker/uptime jen nastaví gauge a dál nepokračuje.
	var m telemetry.Measurement
	switch t.Kind {
	case telemetry.KindIgnored:
		return out
	case telemetry.KindBrokerUptime:
		seconds, err := ParseBrokerUptime(payload)
		if err != nil {
			return p.drop(out, topic, err)
		}
		p.metrics.SetBrokerUptime(float64(seconds))
		p.logger.Debug().Int64("seconds", seconds).Msg("Uptime brokeru")
		return out
	case telemetry.KindIrvine:
		m, err = p.normalizer.FromJSON(t.DeviceID, t.MeasureType, payload)
	case telemetry.KindMeasures:
		m, err = p.normalizer.FromScalar(t.DeviceID, t.MeasureType, payload)
	}
	if err != nil {
		return p.drop(out, topic, err)
	}
	out.Measurement = &m

	// 3. Republikace a zápis
	// Na sobě nezávisí: zařízení bez vozidla se jen neodešle, ale uloží se,
	// a chyba databáze nezastaví republikaci.
	out.Fanout = p.fanout.Publish(ctx, m)

	out.PersistErr = p.sink.SaveMeasurement(ctx, m)
	p.metrics.Persisted(out.PersistErr)
	if out.PersistErr != nil {
		p.logger.Error().Err(out.PersistErr).Str("device_id", m.DeviceID).Msg("Chyba při ukládání měření")
		return out
	}
	out.Persisted = true
	p.logger.Debug().
		Str("device_id", m.DeviceID).
		Str("measure_type", string(m.Type)).
		Float64("value", m.Value).
		Float64("timestamp", m.Timestamp).
		Msg("Měření uloženo")
	return out
}

func (p *Pipeline) drop(out Outcome, topic string, err error) Outcome {
	out.Dropped = err
	reason := DropReason(err)
	p.metrics.Dropped(reason)
	p.logger.Warn().Err(err).Str("topic", topic).Str("reason", reason).Msg("Zpráva odmítnuta")
	return out
}

// DropReason převede chybu na krátký štítek pro metriky.
func DropReason(err error) string {
	switch {
	case errors.Is(err, telemetry.ErrUnknownRoot):
		return "unknown_root"
	case errors.Is(err, telemetry.ErrMalformedTopic):
		return "malformed_topic"
	case errors.Is(err, telemetry.ErrUnknownDeviceFamily):
		return "unknown_device_family"
	case errors.Is(err, telemetry.ErrUnknownMeasureType):
		return "unknown_measure_type"
	case errors.Is(err, telemetry.ErrMissingField):
		return "missing_field"
	case errors.Is(err, telemetry.ErrBadTimestamp):
		return "bad_timestamp"
	case errors.Is(err, telemetry.ErrBadValue):
		return "bad_value"
	case errors.Is(err, telemetry.ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, ErrBadUptime):
		return "bad_uptime"
	default:
		return "other"
	}
}

// ParseBrokerUptime přečte payload Mosquitta "<n> seconds". Samotné číslo projde taky.
func ParseBrokerUptime(payload []byte) (int64, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 || len(fields) > 2 || (len(fields) == 2 && fields[1] != "seconds") {
		return 0, fmt.Errorf("%w: %q", ErrBadUptime, payload)
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadUptime, payload)
	}
	return n, nil
}
