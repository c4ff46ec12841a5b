package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrBadTopic = errors.New("neplatný topic logu")

// ServiceFromTopic vytáhne název služby z "logs/<služba>[/...]".
// Název se používá jako jméno souboru, proto nesmí obsahovat cestu.
func ServiceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "logs" {
		return "", fmt.Errorf("%w: %q", ErrBadTopic, topic)
	}
	name := parts[1]
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: služba %q", ErrBadTopic, name)
	}
	return name, nil
}

// Collector zapisuje logy do <dir>/<služba>.log.
type Collector struct {
	dir string
}

func NewCollector(dir string) (*Collector, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("adresář pro logy %s: %w", dir, err)
	}
	return &Collector{dir: dir}, nil
}

// Append připíše jeden řádek. Soubor se pro každý zápis otevře a zavře,
// rotace zvenku (logrotate) tak nic neztratí.
func (c *Collector) Append(service string, data []byte) error {
	f, err := os.OpenFile(c.path(service), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	// zerolog řádek končí \n, cizí payload ho mít nemusí
	if len(data) == 0 || data[len(data)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) path(service string) string {
	return filepath.Join(c.dir, service+".log")
}

// Handle zpracuje jednu zprávu z brokera.
func (c *Collector) Handle(topic string, payload []byte) error {
	service, err := ServiceFromTopic(topic)
	if err != nil {
		return err
	}
	if err := c.Append(service, payload); err != nil {
		return fmt.Errorf("zápis logu služby %s: %w", service, err)
	}
	return nil
}
