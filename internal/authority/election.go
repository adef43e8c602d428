package authority

import "fmt"

// ElectLeader installs the caller as leader if no leader is set. The caller
// must hold a credential bound to an active node. When a leader already
// exists the call is a no-op, not a re-election: it succeeds without any
// state change and returns no event.
func (s *State) ElectLeader(caller string, now int64) (Event, bool, error) {
	cred, ok := s.activeHolderCredential(caller)
	if !ok {
		return Event{}, false, fmt.Errorf("%w: caller has no credential bound to an active node", ErrAuthorization)
	}
	if s.leaderHolder != "" {
		return Event{}, false, nil
	}

	s.leaderHolder = caller
	s.leaderCredential = cred

	return newEvent(EventLeaderElected,
		attr("leader", caller),
		attrUint("credential_id", cred),
		attrInt("elected_at", now),
	), true, nil
}

// CastVote records the caller's vote on target, replacing any outstanding
// vote by the same caller. A no-confidence vote naming the current leader
// that reaches quorum triggers challenge resolution, which may append a
// second event.
func (s *State) CastVote(caller, target string, noConfidence bool, now int64) ([]Event, error) {
	if _, ok := s.activeHolderCredential(caller); !ok {
		return nil, fmt.Errorf("%w: caller has no credential bound to an active node", ErrAuthorization)
	}
	if target == caller {
		return nil, fmt.Errorf("%w: self-targeted vote", ErrConflict)
	}
	if _, ok := s.credentialByHolder[target]; !ok {
		return nil, fmt.Errorf("%w: vote target holds no credential", ErrNotFound)
	}

	s.retractVote(caller)

	s.votes[caller] = Vote{Voter: caller, Target: target, NoConfidence: noConfidence, CastAt: now}
	if noConfidence {
		s.noConfidence[target]++
	}

	events := []Event{newEvent(EventVoteCast,
		attr("voter", caller),
		attr("target", target),
		attr("no_confidence", fmt.Sprintf("%t", noConfidence)),
		attrInt("no_confidence_count", int64(s.noConfidence[target])),
		attrInt("quorum", int64(s.quorum)),
	)}

	// Quorum reflects current membership; churn recomputes it before any
	// vote is evaluated here. Any vote naming the leader triggers the
	// check, so stale counts left by departed members resolve on the next
	// vote rather than lingering until another no-confidence vote.
	if target == s.leaderHolder && s.noConfidence[target] >= s.quorum {
		events = append(events, s.resolveChallenge())
	}

	return events, nil
}

// WithdrawVote retracts the caller's outstanding vote, decrementing the
// former target's no-confidence count if applicable. Withdrawal is allowed
// even after the voter's node deactivated.
func (s *State) WithdrawVote(caller string) (Event, error) {
	v, ok := s.votes[caller]
	if !ok {
		return Event{}, fmt.Errorf("%w: caller has no outstanding vote", ErrNotFound)
	}

	s.retractVote(caller)

	return newEvent(EventVoteWithdrawn,
		attr("voter", caller),
		attr("target", v.Target),
		attrInt("no_confidence_count", int64(s.noConfidence[v.Target])),
	), nil
}

// retractVote removes the voter's outstanding vote and unwinds its count.
func (s *State) retractVote(voter string) {
	prev, ok := s.votes[voter]
	if !ok {
		return
	}
	delete(s.votes, voter)
	if prev.NoConfidence {
		if c := s.noConfidence[prev.Target] - 1; c > 0 {
			s.noConfidence[prev.Target] = c
		} else {
			delete(s.noConfidence, prev.Target)
		}
	}
}

// resolveChallenge replaces a successfully challenged leader. Active nodes are
// scanned in ascending binding order (lowest credential first) and the first
// holder whose no-confidence count is below quorum becomes leader; with no
// qualifying holder the state falls back to no leader. The scan is a pure
// function of state so every replica resolves identically.
func (s *State) resolveChallenge() Event {
	challenged := s.leaderHolder

	s.leaderHolder = ""
	s.leaderCredential = 0
	for _, cred := range s.activeCredentialsAscending() {
		holder := s.holderByCredential[cred]
		if s.noConfidence[holder] < s.quorum {
			s.leaderHolder = holder
			s.leaderCredential = cred
			break
		}
	}

	newLeader := s.leaderHolder
	if newLeader == "" {
		newLeader = "none"
	}
	return newEvent(EventLeaderChallenged,
		attr("challenged", challenged),
		attr("new_leader", newLeader),
		attrInt("quorum", int64(s.quorum)),
	)
}
