package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ServerUptimeTopic je topic s uptime ingestoru v celých sekundách.
const ServerUptimeTopic = "server/uptime"

// Clock vrací uptime v celých sekundách. Implementuje ho uptime.Clock.
type Clock interface {
	Seconds() int64
}

// UptimeReporter periodicky publikuje uptime procesu.
type UptimeReporter struct {
	client   Publisher
	clock    Clock
	interval time.Duration
	logger   zerolog.Logger
}

func NewUptimeReporter(client Publisher, clock Clock, interval time.Duration, logger zerolog.Logger) *UptimeReporter {
	return &UptimeReporter{client: client, clock: clock, interval: interval, logger: logger}
}

// Run publikuje hned při startu a pak každý interval, dokud ctx neskončí.
func (r *UptimeReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publish()
		}
	}
}

func (r *UptimeReporter) publish() {
	payload := strconv.FormatInt(r.clock.Seconds(), 10)
	// QoS 0 bez retain, na token nečekáme
	r.client.Publish(ServerUptimeTopic, 0, false, payload)
	r.logger.Debug().Str("uptime", payload).Msg("Uptime odeslán")
}
