// Package sampler provides best-effort periodic memory accounting for the
// supervised server process. Sampling is observability only: failures are
// swallowed and never influence lifecycle decisions.
package sampler

import (
	"log/slog"
	"sync"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
)

const DefaultInterval = 60 * time.Second

// RSS returns the resident set size of pid in bytes.
func RSS(pid int) (uint64, error) {
	p, err := gops.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}

// Sampler periodically queries the RSS of one pid and reports each sample
// through the observe callback. At most one sampling loop runs at a time;
// Start while running replaces the previous loop.
type Sampler struct {
	interval time.Duration
	observe  func(rssBytes uint64)
	log      *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
}

func New(interval time.Duration, observe func(uint64), log *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sampler{interval: interval, observe: observe, log: log}
}

// Start begins sampling pid. The OS query runs on the sampler goroutine so a
// slow query can never stall callers.
func (s *Sampler) Start(pid int) {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.run(pid, stop)
}

// Stop halts sampling. Safe to call when not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
}

func (s *Sampler) run(pid int, stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rss, err := RSS(pid)
			if err != nil {
				// Process may already be gone; sampling stays best-effort.
				s.log.Debug("memory sample failed", "pid", pid, "error", err)
				continue
			}
			if s.observe != nil {
				s.observe(rss)
			}
		}
	}
}
