package cluster_authority

import (
	"github.com/trufnetwork/kwil-db/extensions/precompiles"

	"github.com/clustermesh/authority/internal/authority"
)

// authorityCache implements precompiles.Cache over the authority state. The
// engine deep-copies the cache before speculative execution and applies the
// copy back only when the block commits, which gives the state machine its
// all-or-nothing semantics without any rollback logic of its own.
type authorityCache struct {
	state *authority.State
}

func newAuthorityCache(state *authority.State) *authorityCache {
	return &authorityCache{state: state}
}

// State exposes the live state to precompile handlers.
func (c *authorityCache) State() *authority.State {
	return c.state
}

// Copy creates a deep copy of the cache.
func (c *authorityCache) Copy() precompiles.Cache {
	return &authorityCache{state: c.state.Clone()}
}

// Apply installs a previously created copy.
func (c *authorityCache) Apply(cache precompiles.Cache) {
	other := cache.(*authorityCache)
	c.state = other.state
}
