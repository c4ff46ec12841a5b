// Package uptime měří, jak dlouho běží proces a hostitel.
package uptime

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// Clock počítá uptime od pevného okamžiku startu.
type Clock struct {
	start time.Time
	now   func() time.Time
}

// Since vrátí Clock se startem v start.
func Since(start time.Time) *Clock {
	return &Clock{start: start, now: time.Now}
}

// Process vrátí Clock od okamžiku, kdy OS spustil tento proces.
// Čas startu bere z gopsutil, takže zahrnuje i dobu před inicializací main.
func Process() (*Clock, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("proces %d: %w", os.Getpid(), err)
	}
	ms, err := p.CreateTime()
	if err != nil {
		return nil, fmt.Errorf("čas startu procesu: %w", err)
	}
	return Since(time.UnixMilli(ms)), nil
}

// Seconds vrací uptime v celých sekundách.
func (c *Clock) Seconds() int64 {
	d := c.now().Sub(c.start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// Host vrací uptime hostitele v sekundách.
func Host() (uint64, error) {
	return host.Uptime()
}
