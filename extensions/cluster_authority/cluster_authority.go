// Package cluster_authority hosts the cluster membership authority as an
// engine precompile: credential issuance, node binding, peer endpoint
// publication, leader election with no-confidence voting, and the attested
// value ledger. The engine delivers operations one at a time in consensus
// order; the precompile mutates a cached deterministic state machine and
// emits one structured event per committed operation.
package cluster_authority

import (
	"context"
	"fmt"
	"sync"

	"github.com/trufnetwork/kwil-db/common"
	"github.com/trufnetwork/kwil-db/core/log"
	"github.com/trufnetwork/kwil-db/extensions/precompiles"
	sql "github.com/trufnetwork/kwil-db/node/types/sql"

	"github.com/clustermesh/authority/internal/authority"
)

// ExtensionName identifies the authority precompile.
const ExtensionName = "cluster_authority"

type extension struct {
	mu      sync.RWMutex
	logger  log.Logger
	service *common.Service
	cfg     Config
	cache   *authorityCache
	worker  *statusWorker
	status  statusSnapshot
}

var (
	extOnce sync.Once
	extInst *extension
)

func getExtension() *extension {
	extOnce.Do(func() {
		extInst = &extension{
			logger: log.New(log.WithLevel(log.LevelInfo)).New(ExtensionName),
			cache:  newAuthorityCache(authority.NewState(authority.Config{})),
		}
	})
	return extInst
}

// InitializeExtension registers the authority precompile. Called once from
// the extensions registry at process start.
func InitializeExtension() {
	if err := precompiles.RegisterInitializer(ExtensionName, initializePrecompile); err != nil {
		panic(fmt.Sprintf("failed to register %s initializer: %v", ExtensionName, err))
	}
}

func initializePrecompile(ctx context.Context, service *common.Service, db sql.DB, alias string, metadata map[string]any) (precompiles.Precompile, error) {
	cfg, err := configFromService(service)
	if err != nil {
		return precompiles.Precompile{}, fmt.Errorf("%s: %w", ExtensionName, err)
	}

	ext := getExtension()
	ext.configure(service, cfg)

	if cfg.StatusSchedule != "" {
		if err := ext.startStatusWorker(cfg.StatusSchedule); err != nil {
			return precompiles.Precompile{}, fmt.Errorf("%s: start status worker: %w", ExtensionName, err)
		}
	}

	return buildPrecompile(ext), nil
}

func (e *extension) configure(service *common.Service, cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.service = service
	e.cfg = cfg
	if service != nil && service.Logger != nil {
		e.logger = service.Logger.New(ExtensionName)
	}
	e.cache = newAuthorityCache(authority.NewState(cfg.Authority()))
	e.status = statusSnapshot{leader: "none"}
}

func (e *extension) Logger() log.Logger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.logger
}

func (e *extension) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

func (e *extension) Cache() *authorityCache {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache
}

// emit logs a committed event and hands it to registered watchers. Watchers
// observe; they must not feed back into authority state.
func (e *extension) emit(ev authority.Event) {
	e.Logger().Info("authority event", ev.LogFields()...)
	e.recordStatus()
	dispatchEvent(ev)
}

// recordStatus refreshes the snapshot the status worker logs. Live state is
// only ever touched on the consensus path; the worker goroutine reads the
// snapshot under the extension lock instead.
func (e *extension) recordStatus() {
	st := e.Cache().State()
	snap := statusSnapshot{
		totalActive: st.TotalActive(),
		quorum:      st.Quorum(),
		leader:      "none",
	}
	if holder, _, ok := st.Leader(); ok {
		snap.leader = holder
	}
	e.mu.Lock()
	e.status = snap
	e.mu.Unlock()
}

// SetExtensionForTest replaces the singleton state. Tests only.
func SetExtensionForTest(service *common.Service, cfg Config) {
	ext := getExtension()
	ext.configure(service, cfg)
}
