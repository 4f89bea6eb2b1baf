// Package sysmon samples host CPU topology, utilization, and available
// memory. Samples are ephemeral and never persisted; the monitor is
// side-effect-free and safe for concurrent use.
package sysmon

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// UtilizationUnknown marks a sample whose CPU utilization could not be read.
// Consumers treat unknown as busy.
const UtilizationUnknown = -1

// Sample is a point-in-time view of host resources.
type Sample struct {
	When           time.Time
	Cores          int
	Utilization    float64 // percent busy across all cores, UtilizationUnknown if unreadable
	AvailableBytes int64   // 0 when unreadable
}

// Monitor produces resource samples.
type Monitor interface {
	Sample() Sample
}

// HostMonitor reads live values from the running host. The utilization
// window bounds how long Sample blocks.
type HostMonitor struct {
	window time.Duration
}

// NewHostMonitor returns a monitor with the given utilization sampling
// window. Windows outside (0, 1s] fall back to 150ms.
func NewHostMonitor(window time.Duration) *HostMonitor {
	if window <= 0 || window > time.Second {
		window = 150 * time.Millisecond
	}
	return &HostMonitor{window: window}
}

// Sample reads core count, CPU utilization over the configured window, and
// available memory. Failure to read any one value degrades that field only.
func (m *HostMonitor) Sample() Sample {
	sample := Sample{
		When:        time.Now(),
		Cores:       runtime.NumCPU(),
		Utilization: UtilizationUnknown,
	}

	if busy, ok := m.measureUtilization(); ok {
		sample.Utilization = busy
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		sample.AvailableBytes = int64(info.Freeram) * int64(info.Unit)
	}

	return sample
}

func (m *HostMonitor) measureUtilization() (float64, bool) {
	first, ok := readCPUTimes()
	if !ok {
		return 0, false
	}
	time.Sleep(m.window)
	second, ok := readCPUTimes()
	if !ok {
		return 0, false
	}

	totalDelta := second.total - first.total
	if totalDelta <= 0 {
		return 0, false
	}
	idleDelta := second.idle - first.idle
	busy := float64(totalDelta-idleDelta) / float64(totalDelta) * 100
	if busy < 0 {
		busy = 0
	}
	if busy > 100 {
		busy = 100
	}
	return busy, true
}

type cpuTimes struct {
	total uint64
	idle  uint64
}

// readCPUTimes parses the aggregate "cpu" line of /proc/stat. Idle includes
// iowait, matching the usual interpretation of "not doing work".
func readCPUTimes() (cpuTimes, bool) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return cpuTimes{}, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		if len(fields) < 5 {
			return cpuTimes{}, false
		}
		var times cpuTimes
		for i, field := range fields {
			value, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				return cpuTimes{}, false
			}
			times.total += value
			if i == 3 || i == 4 { // idle, iowait
				times.idle += value
			}
		}
		return times, true
	}
	return cpuTimes{}, false
}
