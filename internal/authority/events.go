package authority

import "strconv"

// Event names emitted by successful operations. External observers can
// reconstruct authority state from the event stream without re-querying.
const (
	EventCredentialIssued      = "credential_issued"
	EventCredentialTransferred = "credential_transferred"
	EventNodeBound             = "node_bound"
	EventNodeUnbound           = "node_unbound"
	EventEndpointPublished     = "endpoint_published"
	EventLeaderElected         = "leader_elected"
	EventVoteCast              = "vote_cast"
	EventVoteWithdrawn         = "vote_withdrawn"
	EventLeaderChallenged      = "leader_challenged"
	EventAttestationSubmitted  = "attestation_submitted"
)

// Attr is a single ordered event attribute. Attributes keep insertion order so
// replicas log identical lines for identical operations.
type Attr struct {
	Key   string
	Value string
}

// Event is the structured record of one successful state mutation.
type Event struct {
	Name  string
	Attrs []Attr
}

func newEvent(name string, attrs ...Attr) Event {
	return Event{Name: name, Attrs: attrs}
}

func attr(key, value string) Attr {
	return Attr{Key: key, Value: value}
}

func attrUint(key string, value uint64) Attr {
	return Attr{Key: key, Value: strconv.FormatUint(value, 10)}
}

func attrInt(key string, value int64) Attr {
	return Attr{Key: key, Value: strconv.FormatInt(value, 10)}
}

// LogFields flattens the event into alternating key/value pairs for the
// structured logger.
func (e Event) LogFields() []any {
	fields := make([]any, 0, 2+2*len(e.Attrs))
	fields = append(fields, "event", e.Name)
	for _, a := range e.Attrs {
		fields = append(fields, a.Key, a.Value)
	}
	return fields
}
