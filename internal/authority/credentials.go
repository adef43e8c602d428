package authority

import (
	"fmt"
	"math/big"
)

// IssueCredential allocates the next sequential credential id for recipient.
// While public issuance is disabled only the admin may issue; otherwise any
// caller may, provided paid covers the configured price. paid is the amount
// the hosting environment already collected from the caller.
func (s *State) IssueCredential(caller, recipient string, paid *big.Int) (uint64, Event, error) {
	if recipient == "" {
		return 0, Event{}, fmt.Errorf("%w: recipient cannot be empty", ErrPolicy)
	}
	if _, exists := s.credentialByHolder[recipient]; exists {
		return 0, Event{}, fmt.Errorf("%w: holder %s already owns a credential", ErrConflict, recipient)
	}
	if s.cfg.MaxCredentials > 0 && s.nextCredential > s.cfg.MaxCredentials {
		return 0, Event{}, fmt.Errorf("%w: credential cap %d reached", ErrPolicy, s.cfg.MaxCredentials)
	}

	if s.cfg.PublicIssuance {
		if price := s.cfg.IssuePrice; price != nil && price.Sign() > 0 {
			if paid == nil || paid.Cmp(price) < 0 {
				return 0, Event{}, fmt.Errorf("%w: issuance requires payment of %s", ErrPolicy, price)
			}
		}
	} else if caller != s.cfg.Admin {
		return 0, Event{}, fmt.Errorf("%w: only the registry admin may issue credentials", ErrAuthorization)
	}

	id := s.nextCredential
	s.nextCredential++
	s.holderByCredential[id] = recipient
	s.credentialByHolder[recipient] = id

	return id, newEvent(EventCredentialIssued,
		attrUint("credential_id", id),
		attr("holder", recipient),
	), nil
}

// TransferCredential moves a credential to a new holder. Only the current
// holder may transfer, the recipient must hold nothing, and a credential
// bound to an active node cannot be moved out from under it. Both mappings
// update atomically; this is the only way a credential changes holder.
func (s *State) TransferCredential(caller, recipient string, id uint64) (Event, error) {
	holder, ok := s.holderByCredential[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: credential %d was never issued", ErrNotFound, id)
	}
	if caller != holder {
		return Event{}, fmt.Errorf("%w: caller does not hold credential %d", ErrAuthorization, id)
	}
	if recipient == "" {
		return Event{}, fmt.Errorf("%w: recipient cannot be empty", ErrPolicy)
	}
	if _, exists := s.credentialByHolder[recipient]; exists {
		return Event{}, fmt.Errorf("%w: holder %s already owns a credential", ErrConflict, recipient)
	}
	if nodeID, bound := s.nodeByCredential[id]; bound {
		if n, ok := s.nodes[nodeID]; ok && n.Active {
			return Event{}, fmt.Errorf("%w: credential %d is bound to active node %q", ErrConflict, id, nodeID)
		}
	}

	delete(s.credentialByHolder, holder)
	s.holderByCredential[id] = recipient
	s.credentialByHolder[recipient] = id

	return newEvent(EventCredentialTransferred,
		attrUint("credential_id", id),
		attr("from", holder),
		attr("to", recipient),
	), nil
}
