package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikandrzej/wiwik-app-server/internal/metrics"
	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

type pipelineFixture struct {
	client   *fakeClient
	resolver *fakeResolver
	sink     *fakeSink
	fanout   *Fanout
	reg      *prometheus.Registry
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, vehicles map[string]int64) *pipelineFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.NewIngest(reg)
	require.NoError(t, err)

	fx := &pipelineFixture{
		client:   &fakeClient{},
		resolver: &fakeResolver{vehicles: vehicles},
		sink:     &fakeSink{},
		reg:      reg,
	}
	fx.fanout = NewFanout(fx.client, fx.resolver, nil, FanoutConfig{QoS: 1, Timeout: time.Second}, m, zerolog.Nop())

	normalizer := telemetry.NewNormalizer()
	normalizer.Now = func() time.Time { return time.Unix(1709290800, 250_000_000) }
	fx.pipeline = NewPipeline(normalizer, fx.fanout, fx.sink, m, zerolog.Nop())
	return fx
}

func (fx *pipelineFixture) handle(topic, payload string) Outcome {
	out := fx.pipeline.Handle(context.Background(), topic, []byte(payload))
	fx.fanout.Wait()
	return out
}

func TestPipelineAssignedDevice(t *testing.T) {
	fx := newPipelineFixture(t, map[string]int64{"irvine-07": 5})

	out := fx.handle("irvine/irvine-07/battery", `{"timestamp":"2024-03-01 10:00:00 GMT-1","battery":"87.5"}`)

	require.NoError(t, out.Dropped)
	assert.Equal(t, telemetry.KindIrvine, out.Kind)
	assert.Equal(t, FanoutPublished, out.Fanout)
	assert.True(t, out.Persisted)

	want := telemetry.Measurement{DeviceID: "irvine-07", Type: telemetry.MeasureBattery, Value: 87.5, Timestamp: 1709290800}
	assert.Equal(t, []telemetry.Measurement{want}, fx.sink.saved)

	calls := fx.client.published()
	require.Len(t, calls, 1)
	assert.Equal(t, "vehicles/5/irvine_battery", calls[0].topic)
	assert.True(t, calls[0].retained)
	assert.JSONEq(t, `{"timestamp":1709290800,"value":87.5}`, calls[0].payload)
}

func TestPipelineUnassignedDevicePersistsOnly(t *testing.T) {
	fx := newPipelineFixture(t, nil)

	out := fx.handle("irvine/irvine-08/temperature1", `{"timestamp":"2024-03-01 10:00:00 GMT+2","temperature1":21.5}`)

	assert.Equal(t, FanoutUnresolved, out.Fanout)
	assert.True(t, out.Persisted)
	assert.Empty(t, fx.client.published())
	require.Len(t, fx.sink.saved, 1)
	assert.Equal(t, float64(1709280000), fx.sink.saved[0].Timestamp)
	assert.Equal(t, 1.0, counterValue(t, fx.reg, "wiwik_ingest_unresolved_devices_total", ""))
}

func TestPipelineUnknownMeasureTypeHasNoSideEffects(t *testing.T) {
	fx := newPipelineFixture(t, map[string]int64{"irvine-07": 5})

	out := fx.handle("irvine/irvine-07/humidity", `{"timestamp":"2024-03-01 10:00:00 GMT-1","humidity":40}`)

	assert.ErrorIs(t, out.Dropped, telemetry.ErrUnknownMeasureType)
	assert.Nil(t, out.Measurement)
	assert.Empty(t, fx.client.published())
	assert.Empty(t, fx.sink.saved)
	assert.Zero(t, fx.resolver.calls)
	assert.Equal(t, 1.0, counterValue(t, fx.reg, "wiwik_ingest_messages_dropped_total", "unknown_measure_type"))
}

func TestPipelineDropsMalformedInput(t *testing.T) {
	cases := []struct {
		topic, payload string
		want           error
	}{
		{"irvine/irvine-07", `{}`, telemetry.ErrMalformedTopic},
		{"irvine//battery", `{}`, telemetry.ErrMalformedTopic},
		{"weather/station/1", `{}`, telemetry.ErrUnknownRoot},
		{"measures/u1/acme/acme-1/battery", `1`, telemetry.ErrUnknownDeviceFamily},
		{"measures/u1/irvine/irvine-1", `1`, telemetry.ErrMalformedTopic},
		{"irvine/irvine-07/battery", `{"battery":1}`, telemetry.ErrMissingField},
		{"irvine/irvine-07/battery", `{"timestamp":"2024-03-01 10:00:00","battery":1}`, telemetry.ErrBadTimestamp},
		{"irvine/irvine-07/battery", `{"timestamp":"2024-03-01 10:00:00 GMT+1","battery":"full"}`, telemetry.ErrBadValue},
		{"irvine/irvine-07/battery", `not json`, telemetry.ErrBadPayload},
		{"measures/u1/irvine/irvine-1/battery", `abc`, telemetry.ErrBadValue},
	}
	for _, tc := range cases {
		t.Run(tc.topic+" "+tc.payload, func(t *testing.T) {
			fx := newPipelineFixture(t, map[string]int64{"irvine-07": 5, "irvine-1": 5})

			out := fx.handle(tc.topic, tc.payload)
			assert.ErrorIs(t, out.Dropped, tc.want)
			assert.Empty(t, fx.client.published())
			assert.Empty(t, fx.sink.saved)
		})
	}
}

func TestPipelineKeepsGoingAfterBadMessage(t *testing.T) {
	fx := newPipelineFixture(t, map[string]int64{"irvine-07": 5})

	fx.handle("irvine/irvine-07/battery", `garbage`)
	out := fx.handle("irvine/irvine-07/battery", `{"timestamp":"2024-03-01 10:00:00 GMT0","battery":90}`)

	assert.True(t, out.Persisted)
	assert.Len(t, fx.sink.saved, 1)
	assert.Len(t, fx.client.published(), 1)
}

func TestPipelineMeasuresNamespaceUsesReceiveTime(t *testing.T) {
	fx := newPipelineFixture(t, map[string]int64{"irvine-1": 3})

	out := fx.handle("measures/u1/irvine/irvine-1/temperature1", " 21.25\n")

	require.NoError(t, out.Dropped)
	assert.Equal(t, telemetry.KindMeasures, out.Kind)
	require.Len(t, fx.sink.saved, 1)
	assert.Equal(t, 21.25, fx.sink.saved[0].Value)
	assert.Equal(t, 1709290800.25, fx.sink.saved[0].Timestamp)

	calls := fx.client.published()
	require.Len(t, calls, 1)
	assert.Equal(t, "vehicles/3/irvine_temperature1", calls[0].topic)
}

func TestPipelinePersistFailureDoesNotBlockPublish(t *testing.T) {
	fx := newPipelineFixture(t, map[string]int64{"irvine-07": 5})
	boom := errors.New("connection refused")
	fx.sink.err = boom

	out := fx.handle("irvine/irvine-07/battery", `{"timestamp":"2024-03-01 10:00:00 GMT-1","battery":87.5}`)

	assert.NoError(t, out.Dropped)
	assert.False(t, out.Persisted)
	assert.ErrorIs(t, out.PersistErr, boom)
	assert.Equal(t, FanoutPublished, out.Fanout)
	assert.Len(t, fx.client.published(), 1)
	assert.Equal(t, 1.0, counterValue(t, fx.reg, "wiwik_ingest_persist_errors_total", ""))
}

func TestPipelineResolverFailureStillPersists(t *testing.T) {
	fx := newPipelineFixture(t, nil)
	fx.resolver.err = errors.New("timeout")

	out := fx.handle("irvine/irvine-07/battery", `{"timestamp":"2024-03-01 10:00:00 GMT-1","battery":87.5}`)

	assert.Equal(t, FanoutFailed, out.Fanout)
	assert.True(t, out.Persisted)
}

func TestPipelineBrokerUptime(t *testing.T) {
	fx := newPipelineFixture(t, nil)

	out := fx.handle("$SYS/broker/uptime", "86400 seconds")
	assert.Equal(t, telemetry.KindBrokerUptime, out.Kind)
	assert.NoError(t, out.Dropped)

	families, err := fx.reg.Gather()
	require.NoError(t, err)
	var gauge float64
	for _, mf := range families {
		if mf.GetName() == "wiwik_broker_uptime_seconds" {
			gauge = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 86400.0, gauge)

	out = fx.handle("$SYS/broker/uptime", "forever")
	assert.ErrorIs(t, out.Dropped, ErrBadUptime)
	assert.Empty(t, fx.sink.saved)
}

func TestPipelineIgnoresOtherSysTopics(t *testing.T) {
	fx := newPipelineFixture(t, nil)

	out := fx.handle("$SYS/broker/clients/connected", "3")
	assert.Equal(t, telemetry.KindIgnored, out.Kind)
	assert.NoError(t, out.Dropped)
	assert.Empty(t, fx.sink.saved)
	assert.Empty(t, fx.client.published())
}

func TestParseBrokerUptime(t *testing.T) {
	for payload, want := range map[string]int64{"12 seconds": 12, "0 seconds": 0, " 7 ": 7} {
		got, err := ParseBrokerUptime([]byte(payload))
		require.NoError(t, err, payload)
		assert.Equal(t, want, got)
	}
	for _, payload := range []string{"", "seconds", "12 minutes", "-1 seconds", "1 2 seconds"} {
		_, err := ParseBrokerUptime([]byte(payload))
		assert.ErrorIs(t, err, ErrBadUptime, payload)
	}
}

func TestDropReason(t *testing.T) {
	assert.Equal(t, "unknown_root", DropReason(telemetry.ErrUnknownRoot))
	assert.Equal(t, "bad_timestamp", DropReason(errors.Join(errors.New("x"), telemetry.ErrBadTimestamp)))
	assert.Equal(t, "other", DropReason(errors.New("x")))
}
