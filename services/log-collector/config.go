package main

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config drží nastavení Log Collectoru. Hodnoty jdou z ENV nebo ze souboru .env.
type Config struct {
	MQTTBroker   string `mapstructure:"MQTT_BROKER"`
	MQTTClientID string `mapstructure:"MQTT_CLIENT_ID"`

	// LogTopic: topic, na kterém posloucháme logy (např. "logs/#")
	LogTopic string `mapstructure:"LOG_TOPIC"`

	// LogDir: adresář se soubory logů, v Dockeru namapovaný volume.
	LogDir string `mapstructure:"LOG_DIR"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("MQTT_BROKER", "tcp://mosquitto:1883")
	v.SetDefault("MQTT_CLIENT_ID", "log-collector")
	v.SetDefault("LOG_TOPIC", "logs/#")
	v.SetDefault("LOG_DIR", "/var/log/wiwik")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("konfigurace: %w", err)
	}
	if cfg.MQTTBroker == "" {
		return Config{}, errors.New("MQTT_BROKER je povinný")
	}
	if cfg.LogDir == "" {
		return Config{}, errors.New("LOG_DIR je povinný")
	}
	return cfg, nil
}
