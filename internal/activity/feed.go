package activity

import (
	"fmt"
	"sort"
	"strings"
)

// feedTruncateAt bounds argument/result strings embedded in feed text so a
// single verbose tool call cannot blow up the display.
const feedTruncateAt = 120

type FeedEntry struct {
	TS   int64
	Text string
}

// BuildFeed translates the raw timeline and delegation messages into
// human-readable display entries sorted by timestamp ascending.
//
// The function is referentially transparent: the same inputs always produce
// the same output, so callers may snapshot-test against it directly.
func BuildFeed(timeline []TimelineEntry, delegations []DelegationMessage) []FeedEntry {
	entries := make([]FeedEntry, 0, len(timeline)+len(delegations))

	var lastStart = map[AgentID]int64{}
	for _, t := range timeline {
		if t.Kind == EventStart {
			lastStart[t.Agent] = t.TS
		}
		entries = append(entries, FeedEntry{TS: t.TS, Text: describe(t, lastStart)})
	}
	for _, d := range delegations {
		entries = append(entries, FeedEntry{
			TS:   d.TS,
			Text: fmt.Sprintf("%s → %s: %s", DisplayName(d.From), DisplayName(d.To), truncate(d.Content, feedTruncateAt)),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TS < entries[j].TS
	})
	return entries
}

func describe(t TimelineEntry, lastStart map[AgentID]int64) string {
	name := DisplayName(t.Agent)
	switch t.Kind {
	case EventStart:
		return fmt.Sprintf("%s is analyzing...", name)
	case EventEnd:
		if started, ok := lastStart[t.Agent]; ok && t.TS >= started {
			return fmt.Sprintf("%s completed (%.1fs)", name, float64(t.TS-started)/1000)
		}
		return fmt.Sprintf("%s completed", name)
	case EventComplete:
		return "Session complete"
	case EventToolCall:
		if t.ToolArgs != "" {
			return fmt.Sprintf("%s called %s(%s)", name, t.Tool, truncate(t.ToolArgs, feedTruncateAt))
		}
		return fmt.Sprintf("%s called %s()", name, t.Tool)
	case EventToolResult:
		return fmt.Sprintf("%s got %s → %s", name, t.Tool, truncate(t.ToolResult, feedTruncateAt))
	case EventStatus:
		return fmt.Sprintf("%s: %s", name, truncate(t.Message, feedTruncateAt))
	default:
		return fmt.Sprintf("%s: %s", name, string(t.Kind))
	}
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
