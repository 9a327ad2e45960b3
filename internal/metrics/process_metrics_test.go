package metrics

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceSampler_SelfProcess(t *testing.T) {
	s := NewResourceSampler(SamplerConfig{})
	pid := int32(os.Getpid())

	s.collect(pid, time.Now())
	got, ok := s.Latest()
	require.True(t, ok, "sample of own process")
	assert.Equal(t, pid, got.PID)
	assert.Greater(t, got.MemoryRSS, uint64(0))
	assert.Greater(t, got.NumThreads, int32(0))
}

func TestResourceSampler_HistoryRing(t *testing.T) {
	s := NewResourceSampler(SamplerConfig{History: 3})
	n := 0.0
	s.read = func(_ *process.Process, now time.Time) (Sample, error) {
		n++
		return Sample{CPUPercent: n, Timestamp: now}, nil
	}
	pid := int32(os.Getpid())
	for i := 0; i < 5; i++ {
		s.collect(pid, time.Now())
	}
	h := s.History()
	require.Len(t, h, 3)
	assert.Equal(t, []float64{3, 4, 5}, []float64{h[0].CPUPercent, h[1].CPUPercent, h[2].CPUPercent})

	last, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 5.0, last.CPUPercent)
}

func TestResourceSampler_ResetOnExit(t *testing.T) {
	s := NewResourceSampler(SamplerConfig{})
	s.read = func(_ *process.Process, now time.Time) (Sample, error) {
		return Sample{MemoryMB: 512, Timestamp: now}, nil
	}
	s.collect(int32(os.Getpid()), time.Now())
	_, ok := s.Latest()
	require.True(t, ok)

	s.collect(0, time.Now())
	_, ok = s.Latest()
	assert.False(t, ok, "history cleared when the process is gone")
	assert.Empty(t, s.History())
}

func TestResourceSampler_ReadError(t *testing.T) {
	s := NewResourceSampler(SamplerConfig{})
	s.read = func(*process.Process, time.Time) (Sample, error) { return Sample{}, errors.New("denied") }
	s.collect(int32(os.Getpid()), time.Now())
	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestResourceSampler_StartStop(t *testing.T) {
	s := NewResourceSampler(SamplerConfig{Interval: 10 * time.Millisecond})
	reg := prometheus.NewRegistry()
	require.NoError(t, s.Register(reg))
	require.NoError(t, s.Register(reg), "register twice")

	s.Start(context.Background(), os.Getpid)
	require.Eventually(t, func() bool {
		_, ok := s.Latest()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["craftvisor_process_memory_mb"])
}
