package sampler

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSSOfSelf(t *testing.T) {
	rss, err := RSS(os.Getpid())
	require.NoError(t, err)
	assert.Greater(t, rss, uint64(0))
}

func TestRSSUnknownPID(t *testing.T) {
	_, err := RSS(1 << 22)
	assert.Error(t, err)
}

func TestSamplerReportsPeriodically(t *testing.T) {
	var last atomic.Uint64
	s := New(20*time.Millisecond, func(rss uint64) { last.Store(rss) }, nil)
	s.Start(os.Getpid())
	defer s.Stop()

	require.Eventually(t, func() bool { return last.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSamplerStopIdempotent(t *testing.T) {
	s := New(10*time.Millisecond, func(uint64) {}, nil)
	s.Stop()
	s.Start(os.Getpid())
	s.Stop()
	s.Stop()
}

func TestSamplerRestartReplacesLoop(t *testing.T) {
	var n atomic.Int64
	s := New(15*time.Millisecond, func(uint64) { n.Add(1) }, nil)
	s.Start(os.Getpid())
	s.Start(os.Getpid())
	defer s.Stop()

	require.Eventually(t, func() bool { return n.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
