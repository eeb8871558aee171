package activity

// ApplyEvent computes the partial snapshot update for one incoming trace
// event. It is pure: no I/O, no clock, no mutation of the input snapshot.
//
// Ordering is best effort. Events carry a timestamp but the machine does not
// verify monotonicity; an out-of-order delivery is applied as-is.
func ApplyEvent(ev Event, snap Snapshot) Update {
	var upd Update

	switch ev.Kind {
	case EventStart:
		upd = applyStart(ev, snap)
	case EventEnd:
		upd = applyEnd(ev, snap)
	case EventComplete:
		upd = applyComplete(ev, snap)
	case EventToolCall, EventToolResult, EventStatus:
		// Timeline-only events. The reporting agent becomes the "who is
		// doing this" indicator without altering firing/done semantics.
		if ev.Agent != "" {
			upd.ActiveAgent = agentPtr(ev.Agent)
		}
	}

	if ev.Thinking != "" {
		upd.AppendThinking = ev.Thinking
	}

	upd.AppendTimeline = append(upd.AppendTimeline, TimelineEntry{
		Agent:      ev.Agent,
		Kind:       ev.Kind,
		Tool:       ev.Tool,
		ToolArgs:   ev.ToolArgs,
		ToolResult: ev.ToolResult,
		Message:    ev.Message,
		TS:         ev.TS,
	})
	return upd
}

func applyStart(ev Event, snap Snapshot) Update {
	upd := Update{
		IsActive:    boolPtr(true),
		ActiveAgent: agentPtr(ev.Agent),
		AgentStates: map[AgentID]NodeState{
			AgentHub: NodeFiring,
			ev.Agent: NodeFiring,
		},
	}
	if !snap.seen(AgentHub) {
		upd.AgentsSeen = append(upd.AgentsSeen, AgentHub)
	}
	if ev.Agent != AgentHub && !snap.seen(ev.Agent) {
		upd.AgentsSeen = append(upd.AgentsSeen, ev.Agent)
	}

	if ev.Agent == AgentPrimary {
		// New turn: the primary picks up the conversation directly from
		// the hub.
		upd.AddEdges = append(upd.AddEdges, Edge{Source: AgentHub, Target: AgentPrimary})
		upd.DelegatingTo = agentPtr("")
		upd.ResetThinking = true
		return upd
	}

	// A specialist starting means the previous active agent handed off.
	// The previous agent is shown as done rather than idle so the UI
	// renders a completed handoff instead of a disappearing node.
	prev := snap.ActiveAgent
	if prev == "" || prev == ev.Agent {
		prev = AgentHub
	}
	if prev != ev.Agent {
		if prev != AgentHub {
			upd.AgentStates[prev] = NodeDone
		}
		upd.AddEdges = append(upd.AddEdges, Edge{Source: prev, Target: ev.Agent})
		upd.AppendDelegations = append(upd.AppendDelegations, DelegationMessage{
			From:    prev,
			To:      ev.Agent,
			Content: ev.Message,
			TS:      ev.TS,
		})
	}
	upd.DelegatingTo = agentPtr(ev.Agent)
	return upd
}

func applyEnd(ev Event, snap Snapshot) Update {
	upd := Update{
		AgentStates: map[AgentID]NodeState{
			ev.Agent: NodeDone,
		},
		DelegatingTo: agentPtr(""),
	}

	if ev.Agent != AgentPrimary && snap.seen(AgentPrimary) {
		// A delegate finished: control returns to the primary and the
		// workflow stays live, so the hub keeps firing.
		upd.AgentStates[AgentPrimary] = NodeFiring
		upd.AgentStates[AgentHub] = NodeFiring
		upd.ActiveAgent = agentPtr(AgentPrimary)
	} else {
		// Either the primary itself ended, or an agent ran outside a
		// conversational turn (job flows) and there is no primary to
		// resume. The hub mirrors overall activity: it stays firing
		// only while some other agent still is.
		upd.ActiveAgent = agentPtr("")
		hub := NodeDone
		for id, st := range snap.AgentStates {
			if id != AgentHub && id != ev.Agent && st == NodeFiring {
				hub = NodeFiring
				break
			}
		}
		upd.AgentStates[AgentHub] = hub
	}

	// Pathways into the ending agent go dormant and fade out.
	for _, e := range snap.ActiveEdges {
		if e.Target == ev.Agent {
			upd.RemoveEdges = append(upd.RemoveEdges, e)
		}
	}
	return upd
}

func applyComplete(ev Event, snap Snapshot) Update {
	states := make(map[AgentID]NodeState, len(snap.AgentsSeen)+len(ev.Agents))
	for _, id := range snap.AgentsSeen {
		states[id] = NodeDone
	}
	upd := Update{
		IsActive:     boolPtr(false),
		ActiveAgent:  agentPtr(""),
		DelegatingTo: agentPtr(""),
		AgentStates:  states,
		ClearEdges:   true,
		CompletedAt:  int64Ptr(ev.TS),
	}
	// A complete event may carry the authoritative agent list; merge any
	// stragglers the stream never announced individually.
	for _, id := range ev.Agents {
		if !snap.seen(id) {
			upd.AgentsSeen = append(upd.AgentsSeen, id)
		}
		states[id] = NodeDone
	}
	return upd
}
