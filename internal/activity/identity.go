package activity

import (
	"hash/fnv"
	"strings"
)

// Identity is the display identity of an agent: what to label the node and
// which color to draw it with.
type Identity struct {
	Label string
	Color string
}

var knownIdentities = map[AgentID]Identity{
	AgentHub:             {Label: "Aether", Color: "#7dcfff"},
	AgentPrimary:         {Label: "Architect", Color: "#bb9af7"},
	"behavioral_analyst": {Label: "Behavioral Analyst", Color: "#9ece6a"},
	"device_controller":  {Label: "Device Controller", Color: "#e0af68"},
	"scene_composer":     {Label: "Scene Composer", Color: "#f7768e"},
	"energy_auditor":     {Label: "Energy Auditor", Color: "#73daca"},
}

var fallbackPalette = []string{
	"#ff9e64", "#2ac3de", "#b4f9f8", "#c0caf5", "#ff007c", "#3d59a1",
}

// Lookup returns the display identity for an agent. Unknown ids get a
// deterministic synthesized identity so a new specialist showing up in the
// stream renders with a stable color and label instead of failing.
func Lookup(id AgentID) Identity {
	if ident, ok := knownIdentities[id]; ok {
		return ident
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	return Identity{
		Label: DisplayName(id),
		Color: fallbackPalette[h.Sum32()%uint32(len(fallbackPalette))],
	}
}

// DisplayName converts an agent id like "behavioral_analyst" into a
// human-readable label, preferring the curated label when one exists.
func DisplayName(id AgentID) string {
	if ident, ok := knownIdentities[id]; ok {
		return ident.Label
	}
	if id == "" {
		return "unknown"
	}
	words := strings.Split(string(id), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// DelegationTopology is the static set of pathways the assistant can use.
// The graph renderer filters it to agents actually present this session.
var DelegationTopology = []Edge{
	{Source: AgentHub, Target: AgentPrimary},
	{Source: AgentPrimary, Target: "behavioral_analyst"},
	{Source: AgentPrimary, Target: "device_controller"},
	{Source: AgentPrimary, Target: "scene_composer"},
	{Source: AgentPrimary, Target: "energy_auditor"},
}

// TopologyEdges returns the static topology filtered to nodes present.
func TopologyEdges(present []AgentID) []Edge {
	set := make(map[AgentID]bool, len(present))
	for _, id := range present {
		set[id] = true
	}
	var edges []Edge
	for _, e := range DelegationTopology {
		if set[e.Source] && set[e.Target] {
			edges = append(edges, e)
		}
	}
	return edges
}
