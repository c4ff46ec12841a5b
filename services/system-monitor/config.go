package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	MQTTBroker   string `mapstructure:"MQTT_BROKER"`
	MQTTClientID string `mapstructure:"MQTT_CLIENT_ID"`

	// Interval měření (např. "60s", "1m")
	Interval time.Duration `mapstructure:"MONITOR_INTERVAL"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("MQTT_BROKER", "tcp://mosquitto:1883")
	v.SetDefault("MQTT_CLIENT_ID", "system-monitor")
	v.SetDefault("MONITOR_INTERVAL", "60s")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("konfigurace: %w", err)
	}
	if cfg.MQTTBroker == "" {
		return Config{}, errors.New("MQTT_BROKER je povinný")
	}
	if cfg.Interval <= 0 {
		return Config{}, fmt.Errorf("MONITOR_INTERVAL musí být kladný, ne %s", cfg.Interval)
	}
	return cfg, nil
}
