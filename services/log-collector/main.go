package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

func main() {
	// 1. Vlastní logger
	// Jen stdout. Do MQTT collector nepíše, jinak by četl sám sebe.
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "log-collector").Logger()

	// 2. Načtení konfigurace
	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Neplatná konfigurace")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}
	logger.Info().Str("dir", cfg.LogDir).Msg("Startuji Log Collector")

	// 3. Příprava adresáře pro logy
	// Pokud adresář neexistuje, vytvoříme ho (včetně podadresářů).
	collector, err := NewCollector(cfg.LogDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Nelze připravit adresář pro logy")
	}

	// 4. MQTT handler
	// Spustí se pro KAŽDOU logovací zprávu z jakékoliv služby.
	// Topic vypadá např. takto: "logs/ingestor".
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if err := collector.Handle(msg.Topic(), msg.Payload()); err != nil {
			if errors.Is(err, ErrBadTopic) {
				logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Ignoruji zprávu")
				return
			}
			logger.Error().Err(err).Msg("Chyba při zápisu do souboru")
		}
	}

	// 5. Připojení k MQTT
	// Subscribe je v onConnect, aby se obnovil i po reconnectu.
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(c mqtt.Client) {
			if token := c.Subscribe(cfg.LogTopic, 0, handler); token.Wait() && token.Error() != nil {
				logger.Error().Err(token.Error()).Msg("Subscribe selhal")
				return
			}
			logger.Info().Str("topic", cfg.LogTopic).Msg("Poslouchám logy")
		})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal().Err(token.Error()).Msg("Selhalo připojení k MQTT")
	}
	defer client.Disconnect(250)

	// 6. Čekáme na signál ukončení
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("Vypínám Log Collector")
}
