package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/cache"
	"github.com/mikandrzej/wiwik-app-server/internal/ingest"
	"github.com/mikandrzej/wiwik-app-server/internal/metrics"
	"github.com/mikandrzej/wiwik-app-server/internal/mqttlog"
	"github.com/mikandrzej/wiwik-app-server/internal/store"
	"github.com/mikandrzej/wiwik-app-server/internal/telemetry"
	"github.com/mikandrzej/wiwik-app-server/internal/uptime"
)

const serviceName = "ingestor"

func main() {
	// 1. Zaváděcí logger
	// Platí jen do načtení konfigurace, pak ho nahradí logger s úrovní z LOG_LEVEL.
	boot := newLogger("info", os.Stderr)

	// 2. Načtení konfigurace (.env + ENV)
	cfg, err := LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("Neplatná konfigurace")
	}

	// 3. Příprava MQTT klienta
	// Klient musí existovat dřív než logger, logy jdou i do MQTT.
	// Připojíme ho ale až ve chvíli, kdy je pipeline hotová (onConnect ji potřebuje).
	sub := &subscriber{topics: cfg.Topics()}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		// Suffix z UUID, aby se mohlo připojit víc replik se stejnou konfigurací.
		SetClientID(cfg.MQTTClientID + "-" + uuid.NewString()[:8]).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetAutoReconnect(true).
		// Po každém (re)connectu se subscribe provede znovu.
		SetOnConnectHandler(sub.onConnect)
	client := mqtt.NewClient(opts)

	// 4. Logger: stdout + topic logs/ingestor (čte ho log-collector)
	logger := newLogger(cfg.LogLevel, io.MultiWriter(os.Stdout, mqttlog.New(client, serviceName)))
	sub.logger = logger

	clock, err := uptime.Process()
	if err != nil {
		logger.Warn().Err(err).Msg("Čas startu procesu nelze zjistit, počítám od teď")
		clock = uptime.Since(time.Now())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Připojení k databázi (Postgres)
	pool, err := store.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Kritická chyba: Nelze se připojit k DB")
	}
	defer pool.Close()
	db := store.New(pool)

	// 6. Připojení k Valkey (cache vozidel a poslední hodnoty)
	rdb, err := cache.Connect(ctx, cfg.ValkeyAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("Kritická chyba: Nelze se připojit k Valkey")
	}
	defer rdb.Close()

	// 7. Metriky
	reg := metrics.NewRegistry()
	m, err := metrics.NewIngest(reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Registrace metrik selhala")
	}

	// 8. Inicializace komponent (Wiring)
	// resolver (DB přes cache) -> fanout (vehicles/...) -> pipeline (+ zápis do DB)
	mode, _ := ingest.ParseFanoutMode(cfg.FanoutMode) // ověřeno v LoadConfig
	resolver := cache.NewResolverCache(db, rdb, cfg.ResolverCacheTTL, logger)
	fanout := ingest.NewFanout(client, resolver, cache.NewLastValues(rdb), ingest.FanoutConfig{
		Mode:    mode,
		QoS:     byte(cfg.PublishQoS),
		Timeout: cfg.PublishTimeout,
	}, m, logger)
	pipeline := ingest.NewPipeline(telemetry.NewNormalizer(), fanout, db, m, logger)
	sub.handle = pipeline.Handle

	// 9. Připojení k brokeru
	// Od této chvíle chodí zprávy do pipeline.
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal().Err(token.Error()).Str("broker", cfg.MQTTBroker).Msg("Selhalo připojení k MQTT")
	}
	logger.Info().Str("broker", cfg.MQTTBroker).Str("fanout_mode", string(mode)).Msg("Ingestor startuje")

	// 10. Vlastní uptime na server/uptime (hned a pak každý interval)
	go ingest.NewUptimeReporter(client, clock, cfg.UptimeInterval, logger).Run(ctx)

	// 11. Health + metrics server pro Docker a Prometheus
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           healthRouter(reg, client),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("Health server běží")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Health server spadl")
		}
	}()

	// 12. Graceful shutdown (CTRL+C, docker stop)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Ukončuji službu...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	// Nejdřív přestaneme přijímat, pak počkáme na rozpracované publikace.
	for topic := range cfg.Topics() {
		client.Unsubscribe(topic).WaitTimeout(time.Second)
	}
	fanout.Wait()
	client.Disconnect(250)
}

// healthRouter vystaví /health (200 jen při živém spojení s brokerem) a /metrics.
func healthRouter(reg *prometheus.Registry, client mqtt.Client) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !client.IsConnectionOpen() {
			http.Error(w, "MQTT odpojeno", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler(reg))
	return r
}

// newLogger vytvoří JSON logger s úrovní z LOG_LEVEL.
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}
