// Package mqttlog posílá logy služeb do MQTT, odkud je sbírá log-collector.
package mqttlog

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher je část mqtt.Client, kterou writer potřebuje.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Writer implementuje io.Writer. Každý zápis (jeden JSON řádek ze zerologu)
// se odešle jako jedna zpráva na logs/<service>.
type Writer struct {
	client Publisher
	topic  string
}

// Topic vrací topic logů dané služby.
func Topic(service string) string {
	return fmt.Sprintf("logs/%s", service)
}

// New vytvoří writer pro službu serviceName.
func New(client Publisher, serviceName string) *Writer {
	return &Writer{client: client, topic: Topic(serviceName)}
}

// Write odešle kopii p s QoS 0 bez retain a nečeká na token.
// Logování nesmí brzdit zpracování zpráv, ztracený řádek je přijatelný.
func (w *Writer) Write(p []byte) (int, error) {
	// zerolog buffer po návratu znovu použije
	payload := make([]byte, len(p))
	copy(payload, p)

	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}
