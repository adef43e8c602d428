// Package authority implements the cluster membership authority: a
// deterministic state machine covering credential issuance, node binding, peer
// endpoint publication, leader election with no-confidence voting, and the
// attested value ledger.
//
// The package performs no I/O, no locking, and no retries. The hosting
// execution environment delivers operations one at a time in a global order
// and commits or discards each atomically; every exported operation validates
// all preconditions before its first mutation so a rejection leaves the state
// untouched.
package authority

import (
	"math/big"
	"sort"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Config carries the operator policy the authority enforces. It is fixed at
// initialization and never mutated by operations.
type Config struct {
	// Admin is the holder identity allowed to issue credentials while
	// public issuance is disabled, and the treasury for paid issuance.
	Admin string

	// RootAddress is the only acceptable link B signer.
	RootAddress ethcommon.Address

	// MaxCredentials caps total issuance. Zero means no cap.
	MaxCredentials uint64

	// PublicIssuance opens issuance to any caller paying IssuePrice.
	PublicIssuance bool

	// IssuePrice is the minimum payment for public issuance. Nil or zero
	// means free.
	IssuePrice *big.Int

	// DevMode disables the endpoint transport and domain restrictions.
	DevMode bool

	// AllowedDomains lists base domains acceptable for endpoints outside
	// dev mode. Matching includes subdomains.
	AllowedDomains []string
}

// Node is one logical cluster member. A node record is created on first bind
// and retained after unbind with its binding cleared, so a node id can be
// reused once released.
type Node struct {
	ID             string
	Credential     uint64 // 0 when unbound
	Active         bool
	Endpoint       string
	AttestedValue  uint64
	AttestedAt     int64
	HasAttestation bool
}

// Vote is one holder's outstanding vote. A holder has at most one; casting a
// new vote retracts the previous one first.
type Vote struct {
	Voter        string
	Target       string
	NoConfidence bool
	CastAt       int64
}

// State is the authority's entire mutable state. The hosting environment
// grants each operation implicit exclusive access, so there is no internal
// synchronization.
type State struct {
	cfg Config

	nextCredential     uint64
	holderByCredential map[uint64]string
	credentialByHolder map[string]uint64

	nodes            map[string]*Node
	nodeByCredential map[uint64]string

	totalActive int
	quorum      int

	leaderHolder     string
	leaderCredential uint64

	votes        map[string]Vote // by voter
	noConfidence map[string]int  // outstanding no-confidence votes by target
}

// NewState creates an empty authority with the supplied policy.
func NewState(cfg Config) *State {
	return &State{
		cfg:                cfg,
		nextCredential:     1,
		holderByCredential: make(map[uint64]string),
		credentialByHolder: make(map[string]uint64),
		nodes:              make(map[string]*Node),
		nodeByCredential:   make(map[uint64]string),
		votes:              make(map[string]Vote),
		noConfidence:       make(map[string]int),
	}
}

// Clone deep-copies the state. Used by the hosting environment to snapshot
// state around speculative execution.
func (s *State) Clone() *State {
	c := &State{
		cfg:                s.cfg,
		nextCredential:     s.nextCredential,
		holderByCredential: make(map[uint64]string, len(s.holderByCredential)),
		credentialByHolder: make(map[string]uint64, len(s.credentialByHolder)),
		nodes:              make(map[string]*Node, len(s.nodes)),
		nodeByCredential:   make(map[uint64]string, len(s.nodeByCredential)),
		totalActive:        s.totalActive,
		quorum:             s.quorum,
		leaderHolder:       s.leaderHolder,
		leaderCredential:   s.leaderCredential,
		votes:              make(map[string]Vote, len(s.votes)),
		noConfidence:       make(map[string]int, len(s.noConfidence)),
	}
	for k, v := range s.holderByCredential {
		c.holderByCredential[k] = v
	}
	for k, v := range s.credentialByHolder {
		c.credentialByHolder[k] = v
	}
	for k, v := range s.nodes {
		node := *v
		c.nodes[k] = &node
	}
	for k, v := range s.nodeByCredential {
		c.nodeByCredential[k] = v
	}
	for k, v := range s.votes {
		c.votes[k] = v
	}
	for k, v := range s.noConfidence {
		c.noConfidence[k] = v
	}
	return c
}

// Config returns the policy the authority was initialized with.
func (s *State) Config() Config {
	return s.cfg
}

// TotalActive is the cardinality of the active membership set.
func (s *State) TotalActive() int {
	return s.totalActive
}

// Quorum is the no-confidence threshold: floor(total_active/2)+1, or 0 for an
// empty membership.
func (s *State) Quorum() int {
	return s.quorum
}

// Leader returns the current leader holder and credential, if any.
func (s *State) Leader() (holder string, credential uint64, ok bool) {
	if s.leaderHolder == "" {
		return "", 0, false
	}
	return s.leaderHolder, s.leaderCredential, true
}

// CredentialOf returns the credential held by holder, or 0.
func (s *State) CredentialOf(holder string) uint64 {
	return s.credentialByHolder[holder]
}

// HolderOf returns the holder of a credential, or "".
func (s *State) HolderOf(credential uint64) string {
	return s.holderByCredential[credential]
}

// NodeInfo returns a copy of the node record for id, if present.
func (s *State) NodeInfo(id string) (Node, bool) {
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// VoteOf returns the outstanding vote by voter, if any.
func (s *State) VoteOf(voter string) (Vote, bool) {
	v, ok := s.votes[voter]
	return v, ok
}

// NoConfidenceCount returns the live no-confidence count naming target.
func (s *State) NoConfidenceCount(target string) int {
	return s.noConfidence[target]
}

// recomputeQuorum refreshes the threshold after membership churn. It must run
// before any subsequent vote is evaluated.
func (s *State) recomputeQuorum() {
	if s.totalActive == 0 {
		s.quorum = 0
		return
	}
	s.quorum = s.totalActive/2 + 1
}

// activeCredentialsAscending returns the credentials of active nodes in
// ascending binding order. This ordering is the deterministic tie-break for
// challenge resolution; all replicas derive the same slice from the same
// state.
func (s *State) activeCredentialsAscending() []uint64 {
	creds := make([]uint64, 0, len(s.nodeByCredential))
	for cred, nodeID := range s.nodeByCredential {
		if n, ok := s.nodes[nodeID]; ok && n.Active {
			creds = append(creds, cred)
		}
	}
	sort.Slice(creds, func(i, j int) bool { return creds[i] < creds[j] })
	return creds
}

// activeHolderCredential resolves caller to a credential bound to an active
// node. This is the shared gate for elect and vote.
func (s *State) activeHolderCredential(caller string) (uint64, bool) {
	cred, ok := s.credentialByHolder[caller]
	if !ok {
		return 0, false
	}
	nodeID, ok := s.nodeByCredential[cred]
	if !ok {
		return 0, false
	}
	n, ok := s.nodes[nodeID]
	if !ok || !n.Active {
		return 0, false
	}
	return cred, true
}
