package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/mqttlog"
)

const serviceName = "system-monitor"

func main() {
	// 1. Zaváděcí logger
	// MQTT ještě neběží, takže zatím jen stderr.
	boot := newLogger("info", os.Stderr)

	// 2. Načtení konfigurace
	cfg, err := LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("Neplatná konfigurace")
	}

	// 3. Konfigurace MQTT klienta
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)

	// Připojení k brokeru (blokující operace s Tokenem)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		boot.Fatal().Err(token.Error()).Msg("Selhalo připojení k MQTT") // bez MQTT nemá smysl běžet
	}
	// Zajistíme odpojení při ukončení programu
	defer client.Disconnect(250)

	// 4. Plný logger: stdout + logs/system-monitor
	logger := newLogger(cfg.LogLevel, io.MultiWriter(os.Stdout, mqttlog.New(client, serviceName)))
	logger.Info().Dur("interval", cfg.Interval).Msg("Startuji System Monitor")

	// 5. Časovač
	// Ticker posílá signál do ticker.C každý MONITOR_INTERVAL.
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// 6. Handling systémových signálů (Graceful Shutdown)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// OKAMŽITÉ ODESLÁNÍ PŘI STARTU
	// Nečekáme na první tik. Běží v goroutině, aby neblokovalo start smyčky.
	go publishStats(client, CollectStats(logger), logger)

	// 7. Hlavní smyčka
	logger.Info().Msg("Vstupuji do hlavní smyčky")
	for {
		select {
		// A) Signál k ukončení
		case <-sigChan:
			logger.Info().Msg("Přijat signál ukončení, vypínám...")
			return // spustí se defery

		// B) Tik časovače
		// Měření CPU trvá min 1 s (monitor.go).
		case <-ticker.C:
			publishStats(client, CollectStats(logger), logger)
		}
	}
}

// newLogger vytvoří JSON logger. Neznámá úroveň = info.
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}
