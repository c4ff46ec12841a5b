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

	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/cache"
	"github.com/mikandrzej/wiwik-app-server/internal/metrics"
	"github.com/mikandrzej/wiwik-app-server/internal/store"
	"github.com/mikandrzej/wiwik-app-server/internal/uptime"
)

func main() {
	// 1. Zaváděcí logger, do načtení konfigurace
	boot := newLogger("info", os.Stderr)

	// 2. Načtení konfigurace
	cfg, err := LoadConfig()
	if err != nil {
		boot.Fatal().Err(err).Msg("Neplatná konfigurace")
	}
	logger := newLogger(cfg.LogLevel, os.Stdout)
	logger.Info().Str("port", cfg.HTTPPort).Msg("Startuji Fleet API")

	// Uptime pro /api/getUptime počítáme od startu procesu, ne od startu handleru.
	clock, err := uptime.Process()
	if err != nil {
		logger.Warn().Err(err).Msg("Čas startu procesu nelze zjistit, počítám od teď")
		clock = uptime.Since(time.Now())
	}

	ctx := context.Background()

	// 3. Připojení k databázi (Postgres)
	// pgxpool drží sadu spojení, každý request si jedno půjčí a vrátí.
	pool, err := store.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Kritická chyba: Nelze se připojit k DB")
	}
	defer pool.Close()

	// 4. Připojení k Valkey (poslední hodnoty, invalidace cache vozidel)
	rdb, err := cache.Connect(ctx, cfg.ValkeyAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("Kritická chyba: Nelze se připojit k Valkey")
	}
	defer rdb.Close()

	// 5. Metriky
	reg := metrics.NewRegistry()
	apiMetrics, err := metrics.NewAPI(reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Registrace metrik selhala")
	}

	// 6. Inicializace komponent (Wiring)
	svc := NewService(store.New(pool), cache.NewLastValues(rdb), cache.NewInvalidator(rdb), logger)
	api := NewAPIHandler(svc, clock, logger)

	// 7. HTTP server
	// Router už obsahuje CORS, metriky a timeout pro /api.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(apiMetrics, metrics.Handler(reg), cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("address", server.Addr).Msg("HTTP server naslouchá")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server spadl")
		}
	}()

	// 8. Graceful shutdown
	// Rozpracované requesty dostanou na dokončení stejný čas jako jeden request.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Ukončuji službu...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server se neukončil včas")
	}
}

// newLogger vytvoří JSON logger s úrovní z LOG_LEVEL (neplatná hodnota = info).
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "fleet-api").Logger()
}
