package activity

// AgentID identifies an agent in the assistant topology.
type AgentID string

const (
	// AgentHub is the always-present orchestrating node. It is rendered as
	// firing whenever any other tracked agent is firing.
	AgentHub AgentID = "aether"
	// AgentPrimary is the conversational entry point that delegates to
	// specialists.
	AgentPrimary AgentID = "architect"
)

type NodeState string

const (
	NodeDormant NodeState = "dormant"
	NodeIdle    NodeState = "idle"
	NodeFiring  NodeState = "firing"
	NodeDone    NodeState = "done"
)

type EventKind string

const (
	EventStart      EventKind = "start"
	EventEnd        EventKind = "end"
	EventComplete   EventKind = "complete"
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
	// EventStatus carries a free-form progress message. It is synthesized
	// from job lifecycle updates and only ever touches the timeline.
	EventStatus EventKind = "status"
)

// Event is one trace-shaped wire event. Timestamps are epoch milliseconds as
// sent by the backend; the engine assumes best-effort ordering and does not
// defend against retransmission or clock skew.
type Event struct {
	Kind       EventKind `json:"event"`
	Agent      AgentID   `json:"agent,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	ToolArgs   string    `json:"tool_args,omitempty"`
	ToolResult string    `json:"tool_result,omitempty"`
	Thinking   string    `json:"thinking,omitempty"`
	Message    string    `json:"message,omitempty"`
	Agents     []AgentID `json:"agents,omitempty"`
	TS         int64     `json:"ts,omitempty"`
}

type TimelineEntry struct {
	Agent      AgentID   `json:"agent"`
	Kind       EventKind `json:"event"`
	Tool       string    `json:"tool,omitempty"`
	ToolArgs   string    `json:"tool_args,omitempty"`
	ToolResult string    `json:"tool_result,omitempty"`
	Message    string    `json:"message,omitempty"`
	TS         int64     `json:"ts"`
}

type DelegationMessage struct {
	From    AgentID `json:"from"`
	To      AgentID `json:"to"`
	Content string  `json:"content"`
	TS      int64   `json:"ts"`
}

// Edge is a directed delegation pathway between two seen agents.
type Edge struct {
	Source AgentID `json:"source"`
	Target AgentID `json:"target"`
}

// Snapshot is the process-wide picture of "what is happening now". It is
// immutable once published: the store replaces it wholesale on every update
// so subscribers can compare identity cheaply.
type Snapshot struct {
	Version            uint64
	IsActive           bool
	ActiveAgent        AgentID
	DelegatingTo       AgentID
	AgentsSeen         []AgentID
	AgentStates        map[AgentID]NodeState
	ActiveEdges        []Edge
	LiveTimeline       []TimelineEntry
	ThinkingStream     string
	DelegationMessages []DelegationMessage
	CompletedAt        int64
}

// State reports the tracked state for an agent, NodeDormant when unseen.
func (s Snapshot) State(id AgentID) NodeState {
	if st, ok := s.AgentStates[id]; ok {
		return st
	}
	return NodeDormant
}

// AnyFiring reports whether any agent other than the hub is firing.
func (s Snapshot) AnyFiring() bool {
	for id, st := range s.AgentStates {
		if id != AgentHub && st == NodeFiring {
			return true
		}
	}
	return false
}

func (s Snapshot) seen(id AgentID) bool {
	for _, a := range s.AgentsSeen {
		if a == id {
			return true
		}
	}
	return false
}

// Update is a partial snapshot produced by the state machine. Nil pointer and
// nil slice/map fields leave the corresponding snapshot field untouched;
// Append* fields accumulate.
type Update struct {
	IsActive     *bool
	ActiveAgent  *AgentID
	DelegatingTo *AgentID

	// AgentsSeen lists agents to add, preserving first-seen order.
	AgentsSeen []AgentID
	// AgentStates merges per-agent state overrides.
	AgentStates map[AgentID]NodeState

	// AddEdges and RemoveEdges adjust the live pathway set. ClearEdges
	// empties it first.
	AddEdges    []Edge
	RemoveEdges []Edge
	ClearEdges  bool

	AppendTimeline    []TimelineEntry
	AppendThinking    string
	ResetThinking     bool
	AppendDelegations []DelegationMessage

	CompletedAt *int64
}

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is one entry in the session-scoped job registry. Jobs are never
// deleted; terminal jobs stay visible for the rest of the session.
type Job struct {
	ID        string    `json:"job_id"`
	Type      string    `json:"job_type"`
	Title     string    `json:"title"`
	Status    JobStatus `json:"status"`
	StartedAt int64     `json:"started_at"`
}

func boolPtr(v bool) *bool        { return &v }
func agentPtr(v AgentID) *AgentID { return &v }
func int64Ptr(v int64) *int64     { return &v }
