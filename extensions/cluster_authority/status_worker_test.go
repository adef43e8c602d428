package cluster_authority

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartStatusWorker(t *testing.T) {
	ext := setupExtension(t)
	t.Cleanup(StopStatusWorkerForTest)

	require.NoError(t, ext.startStatusWorker("@every 1h"))
	require.NotNil(t, ext.worker)

	// Restarting with a new schedule replaces the previous worker.
	require.NoError(t, ext.startStatusWorker("*/5 * * * *"))
	require.NotNil(t, ext.worker)

	StopStatusWorkerForTest()
	require.Nil(t, ext.worker)
}

func TestStartStatusWorker_BadSchedule(t *testing.T) {
	ext := setupExtension(t)
	t.Cleanup(StopStatusWorkerForTest)

	err := ext.startStatusWorker("not a schedule")
	require.Error(t, err)
	require.Nil(t, ext.worker)
}

func TestLogClusterStatus_NoPanicOnEmptyState(t *testing.T) {
	ext := setupExtension(t)
	ext.logClusterStatus()
}

func TestStatusSnapshot_TracksCommits(t *testing.T) {
	ext := setupExtension(t)

	require.Equal(t, statusSnapshot{leader: "none"}, ext.status)

	require.NoError(t, ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{"0xa"}, discardResult))
	require.NoError(t, ext.bindNodeHandler(engCtx("0xa"), nil, []any{"node-1"}, discardResult))
	require.NoError(t, ext.electLeaderHandler(engCtx("0xa"), nil, nil, discardResult))
	require.Equal(t, statusSnapshot{totalActive: 1, quorum: 1, leader: "0xa"}, ext.status)

	require.NoError(t, ext.unbindNodeHandler(engCtx("0xa"), nil, []any{"node-1"}, discardResult))
	require.Equal(t, statusSnapshot{totalActive: 0, quorum: 0, leader: "none"}, ext.status)
}

// TestLogClusterStatus_ConcurrentWithHandlers drives handlers on one goroutine
// while the worker logs on another; the race detector flags any unsynchronized
// state access between the two paths.
func TestLogClusterStatus_ConcurrentWithHandlers(t *testing.T) {
	ext := setupExtension(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			ext.logClusterStatus()
		}
	}()

	for i := 0; i < 50; i++ {
		holder := fmt.Sprintf("0xholder%02d", i)
		nodeID := fmt.Sprintf("node-%02d", i)
		require.NoError(t, ext.issueCredentialHandler(engCtx(testAdmin), nil, []any{holder}, discardResult))
		require.NoError(t, ext.bindNodeHandler(engCtx(holder), nil, []any{nodeID}, discardResult))
		require.NoError(t, ext.unbindNodeHandler(engCtx(holder), nil, []any{nodeID}, discardResult))
	}
	<-done
}
