package authority

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/clustermesh/authority/internal/sigchain"
)

// secureScheme is the only transport accepted outside dev mode.
const secureScheme = "https"

// PeerEndpoint is one entry of the active peer list.
type PeerEndpoint struct {
	NodeID   string
	Endpoint string
}

// PublishEndpoint records a connection endpoint for an active node after the
// full signature chain verifies against the configured root. Outside dev mode
// the endpoint must use the secure transport scheme and sit under an allowed
// base domain.
func (s *State) PublishEndpoint(nodeID string, proof sigchain.Proof, endpoint string) (Event, error) {
	n, ok := s.nodes[nodeID]
	if !ok || !n.Active {
		return Event{}, fmt.Errorf("%w: node %q is not active", ErrNotFound, nodeID)
	}

	if err := sigchain.VerifyKeyBinding(proof, s.cfg.RootAddress); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	if err := s.validateEndpoint(endpoint); err != nil {
		return Event{}, err
	}

	n.Endpoint = endpoint

	return newEvent(EventEndpointPublished,
		attr("node_id", nodeID),
		attrUint("credential_id", n.Credential),
		attr("endpoint", endpoint),
	), nil
}

// ListEndpoints enumerates endpoints of active nodes that published one, in
// ascending bound-credential order. Callers must not rely on the ordering
// beyond stability within a single read.
func (s *State) ListEndpoints() []PeerEndpoint {
	return lo.FilterMap(s.activeCredentialsAscending(), func(cred uint64, _ int) (PeerEndpoint, bool) {
		nodeID := s.nodeByCredential[cred]
		n := s.nodes[nodeID]
		if n.Endpoint == "" {
			return PeerEndpoint{}, false
		}
		return PeerEndpoint{NodeID: nodeID, Endpoint: n.Endpoint}, true
	})
}

func (s *State) validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint cannot be empty", ErrPolicy)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: endpoint is not a valid URL: %v", ErrPolicy, err)
	}

	if s.cfg.DevMode {
		return nil
	}

	if u.Scheme != secureScheme {
		return fmt.Errorf("%w: endpoint scheme %q is not allowed, use %s", ErrPolicy, u.Scheme, secureScheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: endpoint has no host", ErrPolicy)
	}
	for _, domain := range s.cfg.AllowedDomains {
		d := strings.ToLower(domain)
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("%w: endpoint domain %q is not in the allow-list", ErrPolicy, host)
}
