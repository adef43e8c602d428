package cluster_authority

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// statusWorker periodically logs a cluster snapshot so operators can watch
// membership drift without querying the engine.
type statusWorker struct {
	cron *cron.Cron
}

// statusSnapshot is the worker's view of the cluster, refreshed on every
// committed operation. The worker never reads authority state directly.
type statusSnapshot struct {
	totalActive int
	quorum      int
	leader      string
}

func (e *extension) startStatusWorker(schedule string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.worker != nil {
		e.worker.stop()
		e.worker = nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, e.logClusterStatus); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	e.worker = &statusWorker{cron: c}
	e.logger.Info("status worker started", "schedule", schedule)
	return nil
}

func (e *extension) logClusterStatus() {
	e.mu.RLock()
	snap := e.status
	logger := e.logger
	e.mu.RUnlock()

	logger.Info("cluster status",
		"total_active", snap.totalActive,
		"quorum", snap.quorum,
		"leader", snap.leader)
}

func (w *statusWorker) stop() {
	if w.cron != nil {
		w.cron.Stop()
	}
}

// StopStatusWorkerForTest halts the periodic logger. Tests only.
func StopStatusWorkerForTest() {
	ext := getExtension()
	ext.mu.Lock()
	defer ext.mu.Unlock()
	if ext.worker != nil {
		ext.worker.stop()
		ext.worker = nil
	}
}
