package main

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/mikandrzej/wiwik-app-server/internal/uptime"
)

// topicPrefix: metriky jdou na server/system/<metrika>.
const topicPrefix = "server/system/"

// SystemStats je jeden snímek stavu hostitele.
type SystemStats struct {
	CPULoad float64 // průměr přes všechna jádra, 0-100

	// Used = Total - Available, bez diskové cache.
	RamUsedMB  float64
	RamTotalMB float64

	// AppRamUsedMB: RSS procesů našeho stacku.
	AppRamUsedMB float64

	DiskUsedGB  float64
	DiskTotalGB float64

	UptimeSeconds uint64 // uptime hostitele
}

// stackProcesses jsou podřetězce názvů procesů, které počítáme do AppRamUsedMB.
var stackProcesses = []string{
	"ingestor",
	"fleet-api",
	"log-collector",
	"mosquitto",
	"postgres",
	"valkey",
}

// CollectStats změří stav hostitele. Chyba jednoho zdroje se zaloguje
// a ostatní měření pokračují, daná hodnota zůstane nulová.
func CollectStats(logger zerolog.Logger) SystemStats {
	var stats SystemStats

	// 1. CPU
	// Percent s intervalem 1 s na tu dobu blokuje. percpu=false vrátí
	// jediné číslo, průměr přes všechna jádra.
	percentages, err := cpu.Percent(time.Second, false)
	if err == nil && len(percentages) > 0 {
		stats.CPULoad = percentages[0]
	} else {
		logger.Error().Err(err).Msg("Chyba při čtení CPU statistik")
	}

	// 2. RAM
	// Available zahrnuje i uvolnitelnou cache, Total-Available je tedy
	// paměť, kterou procesy opravdu drží.
	if vMem, err := mem.VirtualMemory(); err == nil {
		stats.RamUsedMB = float64(vMem.Total-vMem.Available) / 1024.0 / 1024.0
		stats.RamTotalMB = float64(vMem.Total) / 1024.0 / 1024.0
	} else {
		logger.Error().Err(err).Msg("Chyba při čtení RAM statistik")
	}

	// 3. RAM našich služeb (součet RSS)
	stats.AppRamUsedMB = float64(stackRSS()) / 1024.0 / 1024.0

	// 4. Disk
	// Měříme kořenový oddíl. V Dockeru je to overlay kontejneru, který
	// ale sdílí místo s hostitelem.
	if dStat, err := disk.Usage("/"); err == nil {
		stats.DiskUsedGB = float64(dStat.Used) / 1024.0 / 1024.0 / 1024.0
		stats.DiskTotalGB = float64(dStat.Total) / 1024.0 / 1024.0 / 1024.0
	} else {
		logger.Error().Err(err).Msg("Chyba při čtení statistik disku")
	}

	// 5. Uptime hostitele
	if up, err := uptime.Host(); err == nil {
		stats.UptimeSeconds = up
	} else {
		logger.Error().Err(err).Msg("Chyba při čtení uptime hostitele")
	}

	return stats
}

func stackRSS() uint64 {
	procs, _ := process.Processes()
	var sum uint64
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // proces mezitím skončil
		}
		if !isStackProcess(name) {
			continue
		}
		if memInfo, err := p.MemoryInfo(); err == nil {
			sum += memInfo.RSS
		}
	}
	return sum
}

func isStackProcess(name string) bool {
	for _, target := range stackProcesses {
		if strings.Contains(name, target) {
			return true
		}
	}
	return false
}

// Payloads vrací topic -> payload pro všechny metriky snímku.
func (s SystemStats) Payloads() map[string]string {
	return map[string]string{
		topicPrefix + "cpu":        fmt.Sprintf("%.2f", s.CPULoad),
		topicPrefix + "ram_used":   fmt.Sprintf("%.2f", s.RamUsedMB),
		topicPrefix + "ram_total":  fmt.Sprintf("%.2f", s.RamTotalMB),
		topicPrefix + "app_ram":    fmt.Sprintf("%.2f", s.AppRamUsedMB),
		topicPrefix + "disk_used":  fmt.Sprintf("%.2f", s.DiskUsedGB),
		topicPrefix + "disk_total": fmt.Sprintf("%.2f", s.DiskTotalGB),
		topicPrefix + "uptime":     fmt.Sprintf("%d", s.UptimeSeconds),
	}
}

// publisher je část mqtt.Client, kterou monitor používá.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// publishStats odešle snímek s QoS 0 bez retain.
func publishStats(client publisher, stats SystemStats, logger zerolog.Logger) {
	for topic, payload := range stats.Payloads() {
		token := client.Publish(topic, 0, false, payload)
		token.Wait() // u QoS 0 jen lokální odeslání
		if err := token.Error(); err != nil {
			logger.Error().Err(err).Str("topic", topic).Msg("Metriku nelze odeslat")
			continue
		}
		logger.Debug().Str("topic", topic).Str("val", payload).Msg("Metrika odeslána")
	}
}
