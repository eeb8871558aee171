package activity

import "testing"

func TestSubscribeNotifyAndCancel(t *testing.T) {
	store := NewStore()

	var got []uint64
	cancel := store.Subscribe(func(s Snapshot) {
		got = append(got, s.Version)
	})

	store.Apply(Update{IsActive: boolPtr(true)})
	store.Apply(Update{IsActive: boolPtr(false)})
	cancel()
	store.Apply(Update{IsActive: boolPtr(true)})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("notified versions = %v, want [1 2]", got)
	}
}

func TestApplyIsCopyOnWrite(t *testing.T) {
	store := NewStore()
	store.Apply(Update{
		AgentsSeen:  []AgentID{AgentHub, AgentPrimary},
		AgentStates: map[AgentID]NodeState{AgentHub: NodeFiring, AgentPrimary: NodeFiring},
		AddEdges:    []Edge{{Source: AgentHub, Target: AgentPrimary}},
	})
	before := store.Snapshot()

	store.Apply(Update{
		AgentStates: map[AgentID]NodeState{AgentPrimary: NodeDone},
		ClearEdges:  true,
	})
	after := store.Snapshot()

	if before.State(AgentPrimary) != NodeFiring {
		t.Fatalf("earlier snapshot mutated: primary = %q", before.State(AgentPrimary))
	}
	if len(before.ActiveEdges) != 1 {
		t.Fatalf("earlier snapshot lost its edges: %v", before.ActiveEdges)
	}
	if after.State(AgentPrimary) != NodeDone {
		t.Fatalf("new snapshot missing update: primary = %q", after.State(AgentPrimary))
	}
	if after.Version != before.Version+1 {
		t.Fatalf("version %d -> %d, want monotonic increment", before.Version, after.Version)
	}
}

func TestStateKeysStaySubsetOfSeen(t *testing.T) {
	store := NewStore()
	// A state override for an agent never announced must still land it in
	// the seen set.
	snap := store.Apply(Update{
		AgentStates: map[AgentID]NodeState{"late_joiner": NodeFiring},
	})

	for id := range snap.AgentStates {
		if !snap.seen(id) {
			t.Fatalf("state key %q not in seen set %v", id, snap.AgentsSeen)
		}
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	store := NewStore()
	store.Apply(ApplyEvent(Event{Kind: EventStart, Agent: AgentPrimary, TS: 1}, store.Snapshot()))

	notified := false
	cancel := store.Subscribe(func(s Snapshot) { notified = true })
	defer cancel()

	store.Reset()
	snap := store.Snapshot()

	if snap.IsActive || len(snap.AgentsSeen) != 0 || len(snap.LiveTimeline) != 0 {
		t.Fatalf("reset left residue: %+v", snap)
	}
	if !notified {
		t.Fatalf("reset did not notify subscribers")
	}
	if snap.Version == 0 {
		t.Fatalf("reset must keep bumping the version so subscribers see the swap")
	}
}
