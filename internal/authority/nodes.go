package authority

import "fmt"

// BindNode binds node id to the caller's credential and activates it. The
// binding is bidirectional: one credential per node and one node per
// credential, enforced here and relied on everywhere else.
func (s *State) BindNode(nodeID, caller string) (Event, error) {
	if nodeID == "" {
		return Event{}, fmt.Errorf("%w: node id cannot be empty", ErrPolicy)
	}
	if n, exists := s.nodes[nodeID]; exists && n.Credential != 0 {
		return Event{}, fmt.Errorf("%w: node %q is already bound", ErrConflict, nodeID)
	}
	cred, ok := s.credentialByHolder[caller]
	if !ok {
		return Event{}, fmt.Errorf("%w: caller holds no credential", ErrAuthorization)
	}
	if boundID, bound := s.nodeByCredential[cred]; bound {
		return Event{}, fmt.Errorf("%w: credential %d is already bound to node %q", ErrConflict, cred, boundID)
	}

	n, exists := s.nodes[nodeID]
	if !exists {
		n = &Node{ID: nodeID}
		s.nodes[nodeID] = n
	}
	n.Credential = cred
	n.Active = true
	s.nodeByCredential[cred] = nodeID
	s.totalActive++
	s.recomputeQuorum()

	return newEvent(EventNodeBound,
		attr("node_id", nodeID),
		attrUint("credential_id", cred),
		attr("holder", caller),
		attrInt("total_active", int64(s.totalActive)),
		attrInt("quorum", int64(s.quorum)),
	), nil
}

// UnbindNode deactivates the node and clears its binding, endpoint, and
// attested value. Only the bound holder may unbind. If the node's holder was
// the current leader, leadership is cleared with no replacement election.
func (s *State) UnbindNode(nodeID, caller string) (Event, error) {
	n, ok := s.nodes[nodeID]
	if !ok || n.Credential == 0 {
		return Event{}, fmt.Errorf("%w: node %q is not bound", ErrNotFound, nodeID)
	}
	cred, ok := s.credentialByHolder[caller]
	if !ok || cred != n.Credential {
		return Event{}, fmt.Errorf("%w: caller's credential does not match node %q", ErrAuthorization, nodeID)
	}

	leaderCleared := s.leaderCredential == n.Credential

	delete(s.nodeByCredential, n.Credential)
	n.Credential = 0
	n.Active = false
	n.Endpoint = ""
	n.AttestedValue = 0
	n.AttestedAt = 0
	n.HasAttestation = false
	s.totalActive--
	s.recomputeQuorum()

	if leaderCleared {
		s.leaderHolder = ""
		s.leaderCredential = 0
	}

	return newEvent(EventNodeUnbound,
		attr("node_id", nodeID),
		attrUint("credential_id", cred),
		attr("holder", caller),
		attrInt("total_active", int64(s.totalActive)),
		attrInt("quorum", int64(s.quorum)),
		attr("leader_cleared", fmt.Sprintf("%t", leaderCleared)),
	), nil
}
