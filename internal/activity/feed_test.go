package activity

import (
	"strings"
	"testing"
)

func TestBuildFeedOrderingAndPhrasing(t *testing.T) {
	timeline := []TimelineEntry{
		{Agent: AgentPrimary, Kind: EventStart, TS: 1000},
		{Agent: "device_controller", Kind: EventToolCall, Tool: "set_scene", ToolArgs: `{"scene":"movie"}`, TS: 3000},
		{Agent: AgentPrimary, Kind: EventEnd, TS: 4500},
	}
	delegations := []DelegationMessage{
		{From: AgentPrimary, To: "device_controller", Content: "dim the living room", TS: 2000},
	}

	feed := BuildFeed(timeline, delegations)
	if len(feed) != 4 {
		t.Fatalf("feed length = %d, want 4", len(feed))
	}
	for i := 1; i < len(feed); i++ {
		if feed[i].TS < feed[i-1].TS {
			t.Fatalf("feed not sorted ascending at %d: %v", i, feed)
		}
	}

	if feed[0].Text != "Architect is analyzing..." {
		t.Fatalf("start phrasing = %q", feed[0].Text)
	}
	if feed[1].Text != "Architect → Device Controller: dim the living room" {
		t.Fatalf("delegation phrasing = %q", feed[1].Text)
	}
	if !strings.Contains(feed[2].Text, `set_scene({"scene":"movie"})`) {
		t.Fatalf("tool call phrasing = %q", feed[2].Text)
	}
	if feed[3].Text != "Architect completed (3.5s)" {
		t.Fatalf("end phrasing = %q", feed[3].Text)
	}
}

func TestBuildFeedTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 5000)
	feed := BuildFeed([]TimelineEntry{
		{Agent: "energy_auditor", Kind: EventToolResult, Tool: "audit", ToolResult: long, TS: 1},
	}, nil)

	if len(feed) != 1 {
		t.Fatalf("feed length = %d", len(feed))
	}
	if len(feed[0].Text) > feedTruncateAt+64 {
		t.Fatalf("entry not truncated: %d chars", len(feed[0].Text))
	}
	if !strings.HasSuffix(feed[0].Text, "...") {
		t.Fatalf("truncated entry missing ellipsis: %q", feed[0].Text[len(feed[0].Text)-16:])
	}
}

func TestBuildFeedIsDeterministic(t *testing.T) {
	timeline := []TimelineEntry{
		{Agent: AgentPrimary, Kind: EventStart, TS: 5},
		{Agent: "scene_composer", Kind: EventStatus, Message: "rendering scene", TS: 5},
		{Agent: AgentPrimary, Kind: EventComplete, TS: 9},
	}
	delegations := []DelegationMessage{
		{From: AgentPrimary, To: "scene_composer", Content: "compose", TS: 5},
	}

	a := BuildFeed(timeline, delegations)
	b := BuildFeed(timeline, delegations)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("entry %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLookupUnknownAgentIsStable(t *testing.T) {
	first := Lookup("garden_sprinkler")
	second := Lookup("garden_sprinkler")
	if first != second {
		t.Fatalf("identity not stable: %v vs %v", first, second)
	}
	if first.Label != "Garden Sprinkler" {
		t.Fatalf("label = %q", first.Label)
	}
	if first.Color == "" {
		t.Fatalf("no color synthesized")
	}
}

func TestTopologyEdgesFiltersAbsentNodes(t *testing.T) {
	edges := TopologyEdges([]AgentID{AgentHub, AgentPrimary, "scene_composer"})
	for _, e := range edges {
		if e.Target == "device_controller" {
			t.Fatalf("edge to absent node survived filter: %v", e)
		}
	}
	want := []Edge{
		{Source: AgentHub, Target: AgentPrimary},
		{Source: AgentPrimary, Target: "scene_composer"},
	}
	if len(edges) != len(want) {
		t.Fatalf("edges = %v, want %v", edges, want)
	}
}
