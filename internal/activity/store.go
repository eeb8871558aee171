package activity

import "sync"

// Store holds the current Snapshot and a listener registry. Snapshots are
// replaced wholesale on every Apply, never mutated in place, so a listener
// may keep the value it was handed indefinitely.
//
// Apply and Reset notify listeners synchronously on the calling goroutine;
// the stream manager serializes all writes, so listeners observe a totally
// ordered sequence of versions.
type Store struct {
	mu        sync.RWMutex
	snap      Snapshot
	listeners map[int]func(Snapshot)
	nextID    int
}

func NewStore() *Store {
	return &Store{
		snap:      emptySnapshot(),
		listeners: make(map[int]func(Snapshot)),
	}
}

func emptySnapshot() Snapshot {
	return Snapshot{
		AgentStates: map[AgentID]NodeState{},
	}
}

// Snapshot returns the current published snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers a listener invoked after every snapshot swap. The
// returned function cancels the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Apply merges a partial update into a fresh copy of the snapshot, publishes
// it, and notifies listeners. Agents referenced by state overrides are added
// to AgentsSeen so state keys always remain a subset of the seen set.
func (s *Store) Apply(upd Update) Snapshot {
	s.mu.Lock()
	next := merge(s.snap, upd)
	next.Version = s.snap.Version + 1
	s.snap = next
	fns := s.listenerList()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return next
}

// Reset restores the all-empty default snapshot, e.g. on session clear.
func (s *Store) Reset() {
	s.mu.Lock()
	next := emptySnapshot()
	next.Version = s.snap.Version + 1
	s.snap = next
	fns := s.listenerList()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}

func (s *Store) listenerList() []func(Snapshot) {
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func merge(snap Snapshot, upd Update) Snapshot {
	next := snap

	if upd.IsActive != nil {
		next.IsActive = *upd.IsActive
	}
	if upd.ActiveAgent != nil {
		next.ActiveAgent = *upd.ActiveAgent
	}
	if upd.DelegatingTo != nil {
		next.DelegatingTo = *upd.DelegatingTo
	}
	if upd.CompletedAt != nil {
		next.CompletedAt = *upd.CompletedAt
	}

	seen := make([]AgentID, len(snap.AgentsSeen), len(snap.AgentsSeen)+len(upd.AgentsSeen))
	copy(seen, snap.AgentsSeen)
	for _, id := range upd.AgentsSeen {
		seen = appendUnseen(seen, id)
	}

	if len(upd.AgentStates) > 0 {
		states := make(map[AgentID]NodeState, len(snap.AgentStates)+len(upd.AgentStates))
		for id, st := range snap.AgentStates {
			states[id] = st
		}
		for id, st := range upd.AgentStates {
			states[id] = st
			seen = appendUnseen(seen, id)
		}
		next.AgentStates = states
	}
	next.AgentsSeen = seen

	if upd.ClearEdges {
		next.ActiveEdges = nil
	}
	if len(upd.RemoveEdges) > 0 || len(upd.AddEdges) > 0 {
		edges := make([]Edge, 0, len(next.ActiveEdges)+len(upd.AddEdges))
		for _, e := range next.ActiveEdges {
			if !containsEdge(upd.RemoveEdges, e) {
				edges = append(edges, e)
			}
		}
		for _, e := range upd.AddEdges {
			if !containsEdge(edges, e) {
				edges = append(edges, e)
			}
		}
		next.ActiveEdges = edges
	}

	if len(upd.AppendTimeline) > 0 {
		timeline := make([]TimelineEntry, len(snap.LiveTimeline), len(snap.LiveTimeline)+len(upd.AppendTimeline))
		copy(timeline, snap.LiveTimeline)
		next.LiveTimeline = append(timeline, upd.AppendTimeline...)
	}
	if len(upd.AppendDelegations) > 0 {
		msgs := make([]DelegationMessage, len(snap.DelegationMessages), len(snap.DelegationMessages)+len(upd.AppendDelegations))
		copy(msgs, snap.DelegationMessages)
		next.DelegationMessages = append(msgs, upd.AppendDelegations...)
	}

	if upd.ResetThinking {
		next.ThinkingStream = ""
	}
	if upd.AppendThinking != "" {
		next.ThinkingStream += upd.AppendThinking
	}

	return next
}

func appendUnseen(seen []AgentID, id AgentID) []AgentID {
	for _, a := range seen {
		if a == id {
			return seen
		}
	}
	return append(seen, id)
}

func containsEdge(edges []Edge, e Edge) bool {
	for _, x := range edges {
		if x == e {
			return true
		}
	}
	return false
}
