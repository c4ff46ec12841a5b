// Command migrate aplikuje schéma databáze (vehicles, devices, measures).
//
//	migrate --direction up
//	POSTGRES_URL=postgres://... migrate --direction down
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mikandrzej/wiwik-app-server/internal/store"
)

func main() {
	// 1. Logger (jednorázový příkaz, jen stdout)
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "migrate").Logger()

	// 2. Přepínače z příkazové řádky
	flags := pflag.NewFlagSet("migrate", pflag.ExitOnError)
	flags.String("direction", "up", "směr migrace: up nebo down")
	flags.String("postgres-url", "", "connection string (jinak POSTGRES_URL)")
	_ = flags.Parse(os.Args[1:])

	// 3. Konfigurace: přepínač má přednost před POSTGRES_URL z ENV
	v := viper.New()
	v.AutomaticEnv()
	_ = v.BindPFlag("direction", flags.Lookup("direction"))
	_ = v.BindEnv("postgres-url", "POSTGRES_URL")
	_ = v.BindPFlag("postgres-url", flags.Lookup("postgres-url"))

	// 4. Migrace (už aplikované schéma není chyba)
	direction := v.GetString("direction")
	if err := store.Migrate(v.GetString("postgres-url"), direction); err != nil {
		logger.Fatal().Err(err).Str("direction", direction).Msg("Migrace selhala")
	}
	logger.Info().Str("direction", direction).Msg("Migrace dokončena")
}
