package runtimeinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCapacity(t *testing.T) {
	k := New(DefaultOptions())
	require.Equal(t, runtime.NumCPU()*2, k.MaxConcurrentTasks)
	require.Nil(t, k.WorkerID)
	require.Nil(t, k.TotalWorkers)
}

func TestPinnedCapacity(t *testing.T) {
	k := New(Options{MaxConcurrentTasks: 3})
	require.Equal(t, 3, k.MaxConcurrentTasks)
}

func TestForWorker(t *testing.T) {
	k := ForWorker(2, 4, 8)
	require.NotNil(t, k.WorkerID)
	require.Equal(t, 2, *k.WorkerID)
	require.Equal(t, 4, *k.TotalWorkers)
	require.Equal(t, 8, k.MaxConcurrentTasks)
}
