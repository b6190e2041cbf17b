// Package sensor polls host resources under the DB path and flips a
// degraded flag when disk runs low, so readiness probes shed traffic
// before pebble starts failing writes.
package sensor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"chatsync/pkg/logger"
	"chatsync/pkg/telemetry"
)

// Snapshot is a best-effort view of process and disk state.
type Snapshot struct {
	Timestamp time.Time

	HeapBytes uint64
	// Disk free/total in bytes for the filesystem holding the DB path.
	DiskTotal uint64
	DiskFree  uint64
}

// Config controls thresholds and the poll interval.
type Config struct {
	PollInterval time.Duration
	// Degrade when free disk drops below this fraction; recover above
	// twice the threshold (hysteresis).
	DiskLowFrac float64
}

// DefaultConfig returns serviceable defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 10 * time.Second, DiskLowFrac: 0.05}
}

// Sensor samples in the background; Degraded is read by readiness.
type Sensor struct {
	path     string
	cfg      Config
	degraded atomic.Bool

	mu   sync.RWMutex
	snap Snapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a sensor for the filesystem holding path.
func New(path string, cfg Config) *Sensor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.DiskLowFrac <= 0 {
		cfg.DiskLowFrac = 0.05
	}
	return &Sensor{path: path, cfg: cfg}
}

// Start begins background polling. Call Stop to terminate.
func (s *Sensor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		s.sample()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

// Stop stops background polling and waits for the worker to exit.
func (s *Sensor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Degraded reports whether the host is under resource pressure.
func (s *Sensor) Degraded() bool { return s.degraded.Load() }

// Snapshot returns the most recent sample.
func (s *Sensor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Sensor) sample() {
	var snap Snapshot
	snap.Timestamp = time.Now().UTC()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapBytes = ms.HeapAlloc

	var st unix.Statfs_t
	if err := unix.Statfs(s.path, &st); err == nil {
		snap.DiskTotal = st.Blocks * uint64(st.Bsize)
		snap.DiskFree = st.Bavail * uint64(st.Bsize)
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	telemetry.HeapBytes.Set(float64(snap.HeapBytes))
	telemetry.DiskFreeBytes.Set(float64(snap.DiskFree))

	if snap.DiskTotal == 0 {
		return
	}
	frac := float64(snap.DiskFree) / float64(snap.DiskTotal)
	switch {
	case !s.degraded.Load() && frac < s.cfg.DiskLowFrac:
		s.degraded.Store(true)
		logger.Warn("disk_pressure_degraded", "path", s.path, "free_frac", frac)
	case s.degraded.Load() && frac > s.cfg.DiskLowFrac*2:
		s.degraded.Store(false)
		logger.Info("disk_pressure_recovered", "path", s.path, "free_frac", frac)
	}
}
