package ingest

import (
	"context"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
)

// fakeToken je mqtt.Token s předem daným výsledkem.
type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// pendingToken se nikdy nedokončí.
func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakeClient struct {
	mu    sync.Mutex
	calls []publishCall
	token func() mqtt.Token
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	c.calls = append(c.calls, publishCall{topic: topic, qos: qos, retained: retained, payload: body})
	if c.token != nil {
		return c.token()
	}
	return completedToken(nil)
}

func (c *fakeClient) published() []publishCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishCall(nil), c.calls...)
}

type fakeResolver struct {
	vehicles map[string]int64
	err      error
	calls    int
}

func (r *fakeResolver) ResolveVehicle(_ context.Context, deviceID string) (int64, bool, error) {
	r.calls++
	if r.err != nil {
		return 0, false, r.err
	}
	id, ok := r.vehicles[deviceID]
	return id, ok, nil
}

type fakeSink struct {
	saved []telemetry.Measurement
	err   error
}

func (s *fakeSink) SaveMeasurement(_ context.Context, m telemetry.Measurement) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, m)
	return nil
}

type fakeLast struct {
	put []telemetry.Measurement
	err error
}

func (l *fakeLast) Put(_ context.Context, m telemetry.Measurement) error {
	l.put = append(l.put, m)
	return l.err
}
