package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one CPU and memory reading of the game server process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// SamplerConfig configures ResourceSampler.
type SamplerConfig struct {
	Interval time.Duration // default 5s
	History  int           // samples kept, default 120
}

// ResourceSampler periodically reads the resource usage of the supervised
// process through gopsutil and exports it as gauges. Only one pid is tracked;
// a pid of 0 means nothing is running and resets the gauges.
type ResourceSampler struct {
	interval time.Duration

	mu      sync.RWMutex
	history []Sample
	start   int
	count   int
	lastPID int32
	proc    *process.Process

	// replaced in tests
	read func(p *process.Process, now time.Time) (Sample, error)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

func NewResourceSampler(cfg SamplerConfig) *ResourceSampler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.History <= 0 {
		cfg.History = 120
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      name,
			Help:      help,
		}, []string{"pid"})
	}
	return &ResourceSampler{
		interval:   cfg.Interval,
		history:    make([]Sample, cfg.History),
		read:       readSample,
		stopCh:     make(chan struct{}),
		cpuPercent: gauge("cpu_percent", "CPU usage percentage of the game server."),
		memoryMB:   gauge("memory_mb", "Resident memory of the game server in MB."),
		numThreads: gauge("num_threads", "Thread count of the game server."),
		numFDs:     gauge("num_fds", "Open file descriptors of the game server (Unix only)."),
	}
}

// Register registers the sampler gauges with r.
func (s *ResourceSampler) Register(r prometheus.Registerer) error {
	cs := []prometheus.Collector{s.cpuPercent, s.memoryMB, s.numThreads}
	if runtime.GOOS != "windows" {
		cs = append(cs, s.numFDs)
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start samples pid() every interval until ctx is done or Stop is called.
func (s *ResourceSampler) Start(ctx context.Context, pid func() int) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.collect(int32(pid()), time.Now())
			}
		}
	}()
}

// Stop ends collection and waits for the sampling goroutine.
func (s *ResourceSampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *ResourceSampler) collect(pid int32, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pid != s.lastPID {
		s.resetLocked()
		s.lastPID = pid
	}
	if pid <= 0 {
		return
	}
	if s.proc == nil {
		p, err := process.NewProcess(pid)
		if err != nil {
			slog.Debug("resource sampler: process handle", "pid", pid, "error", err)
			return
		}
		s.proc = p
	}
	sample, err := s.read(s.proc, now)
	if err != nil {
		slog.Debug("resource sampler: read failed", "pid", pid, "error", err)
		return
	}
	sample.PID = pid

	label := fmt.Sprint(pid)
	s.cpuPercent.WithLabelValues(label).Set(sample.CPUPercent)
	s.memoryMB.WithLabelValues(label).Set(sample.MemoryMB)
	s.numThreads.WithLabelValues(label).Set(float64(sample.NumThreads))
	if runtime.GOOS != "windows" && sample.NumFDs > 0 {
		s.numFDs.WithLabelValues(label).Set(float64(sample.NumFDs))
	}

	idx := (s.start + s.count) % len(s.history)
	s.history[idx] = sample
	if s.count < len(s.history) {
		s.count++
	} else {
		s.start = (s.start + 1) % len(s.history)
	}
}

// resetLocked drops gauges and history of the previous process.
func (s *ResourceSampler) resetLocked() {
	s.proc = nil
	s.start, s.count = 0, 0
	s.cpuPercent.Reset()
	s.memoryMB.Reset()
	s.numThreads.Reset()
	s.numFDs.Reset()
}

// Latest returns the newest sample of the current process.
func (s *ResourceSampler) Latest() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return Sample{}, false
	}
	return s.history[(s.start+s.count-1)%len(s.history)], true
}

// History returns the retained samples, oldest first.
func (s *ResourceSampler) History() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.history[(s.start+i)%len(s.history)]
	}
	return out
}

func readSample(p *process.Process, now time.Time) (Sample, error) {
	mem, err := p.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("memory info: %w", err)
	}
	// CPUPercent is averaged over the process lifetime; zero on error
	cpu, _ := p.CPUPercent()
	threads, _ := p.NumThreads()
	out := Sample{
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		MemoryRSS:  mem.RSS,
		MemoryVMS:  mem.VMS,
		NumThreads: threads,
		Timestamp:  now,
	}
	if runtime.GOOS != "windows" {
		if fds, err := p.NumFDs(); err == nil {
			out.NumFDs = fds
		}
	}
	return out, nil
}
