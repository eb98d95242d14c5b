package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProcessStats contains resource usage statistics for an ffmpeg process.
type ProcessStats struct {
	PID int `json:"pid"`

	CPUPercent float64       `json:"cpu_percent"` // current usage, 0-100 per core
	CPUUser    time.Duration `json:"cpu_user"`
	CPUSystem  time.Duration `json:"cpu_system"`
	CPUTotal   time.Duration `json:"cpu_total"`

	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
	MemoryRSSMB    float64 `json:"memory_rss_mb"`
	MemoryVMSBytes uint64  `json:"memory_vms_bytes"`
	MemoryPercent  float64 `json:"memory_percent"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of a running encode from /proc.
type ProcessMonitor struct {
	pid       int
	startedAt time.Time
	interval  time.Duration

	mu      sync.RWMutex
	stats   ProcessStats
	running bool

	lastCPUTime   time.Duration
	lastCheckTime time.Time

	totalMemory  uint64
	clockTicksHz int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for pid.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &ProcessMonitor{
		pid:          pid,
		startedAt:    time.Now(),
		interval:     time.Second,
		clockTicksHz: 100, // standard Linux clock tick rate; Sysconf needs cgo
		totalMemory:  getTotalMemory(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins sampling.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	if pm.running {
		pm.mu.Unlock()
		return
	}
	pm.running = true
	pm.lastCheckTime = time.Now()
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.monitorLoop()
}

// Stop stops sampling.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()

	pm.mu.Lock()
	pm.running = false
	pm.mu.Unlock()
}

// Stats returns the most recent sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) monitorLoop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	pm.sample()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.PID = pm.pid
	pm.stats.StartedAt = pm.startedAt
	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	if runtime.GOOS == "linux" {
		pm.sampleLinux(now)
	}
}

// sampleLinux reads CPU time from /proc/[pid]/stat and memory from
// /proc/[pid]/statm. A read failure means the process exited; the last
// sample stands.
func (pm *ProcessMonitor) sampleLinux(now time.Time) {
	statData, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pm.pid))
	if err != nil {
		return
	}

	// The command name is parenthesized and may contain spaces, so field
	// counting starts after the closing paren.
	statStr := string(statData)
	commEnd := strings.LastIndex(statStr, ")")
	if commEnd == -1 {
		return
	}
	afterComm := strings.Fields(statStr[commEnd+2:])
	if len(afterComm) < 13 {
		return
	}

	// utime and stime are fields 11 and 12 after comm, in clock ticks.
	utime, _ := strconv.ParseInt(afterComm[11], 10, 64)
	stime, _ := strconv.ParseInt(afterComm[12], 10, 64)

	tickDuration := time.Second / time.Duration(pm.clockTicksHz)
	cpuUser := time.Duration(utime) * tickDuration
	cpuSystem := time.Duration(stime) * tickDuration
	cpuTotal := cpuUser + cpuSystem

	pm.stats.CPUUser = cpuUser
	pm.stats.CPUSystem = cpuSystem
	pm.stats.CPUTotal = cpuTotal

	elapsed := now.Sub(pm.lastCheckTime)
	if elapsed > 0 && pm.lastCPUTime > 0 {
		cpuDelta := cpuTotal - pm.lastCPUTime
		pm.stats.CPUPercent = float64(cpuDelta) / float64(elapsed) * 100.0
	}

	pm.lastCPUTime = cpuTotal
	pm.lastCheckTime = now

	statmData, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pm.pid))
	if err != nil {
		return
	}

	statmFields := strings.Fields(string(statmData))
	if len(statmFields) >= 2 {
		// statm fields are in pages: size resident shared text lib data dt
		pageSize := uint64(os.Getpagesize())

		vms, _ := strconv.ParseUint(statmFields[0], 10, 64)
		rss, _ := strconv.ParseUint(statmFields[1], 10, 64)

		pm.stats.MemoryVMSBytes = vms * pageSize
		pm.stats.MemoryRSSBytes = rss * pageSize
		pm.stats.MemoryRSSMB = float64(pm.stats.MemoryRSSBytes) / (1024 * 1024)

		if pm.totalMemory > 0 {
			pm.stats.MemoryPercent = float64(pm.stats.MemoryRSSBytes) / float64(pm.totalMemory) * 100.0
		}
	}
}

// getTotalMemory returns the total system memory in bytes.
func getTotalMemory() uint64 {
	if runtime.GOOS != "linux" {
		return 0
	}

	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				kb, _ := strconv.ParseUint(fields[1], 10, 64)
				return kb * 1024
			}
		}
	}

	return 0
}
