package authority

import (
	"fmt"

	"github.com/clustermesh/authority/internal/sigchain"
)

// SubmitAttestation records the latest attested scalar value for an active
// node. The application key signs the node id and decimal value directly, so
// the same chain that authorizes endpoints authenticates reported values.
// Last write wins; no history is retained.
func (s *State) SubmitAttestation(nodeID string, value uint64, proof sigchain.Proof, now int64) (Event, error) {
	n, ok := s.nodes[nodeID]
	if !ok || !n.Active {
		return Event{}, fmt.Errorf("%w: node %q is not active", ErrNotFound, nodeID)
	}

	if err := sigchain.VerifyAttestedValue(nodeID, value, proof, s.cfg.RootAddress); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	n.AttestedValue = value
	n.AttestedAt = now
	n.HasAttestation = true

	return newEvent(EventAttestationSubmitted,
		attr("node_id", nodeID),
		attrUint("value", value),
		attrInt("attested_at", now),
	), nil
}
