// Package stream maintains the live server-push connection to the assistant
// backend and translates its messages into activity snapshot updates.
package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"aether_monitor/internal/activity"
)

type Config struct {
	// URL of the activity stream. ws:// and wss:// dial a websocket,
	// http:// and https:// read ND-JSON lines.
	URL string
	// BackoffBase and BackoffCap bound the reconnect delay
	// min(base * 2^attempts, cap).
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// GraceDelay is the pause before declaring the session idle after a
	// job completes with no agent still firing, avoiding flicker when
	// another agent immediately continues.
	GraceDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = 1800 * time.Millisecond
	}
	return c
}

// Status describes the connection for display purposes.
type Status struct {
	Connected bool
	Attempts  int
}

// Manager owns exactly one live connection per session. It reads messages,
// dispatches them by type discriminator, and reconnects with capped
// exponential backoff, indefinitely; availability is preferred over
// surfacing connection failure.
type Manager struct {
	cfg    Config
	store  *activity.Store
	jobs   *JobRegistry
	logger *log.Logger
	dial   dialFunc

	onStatus func(Status)

	mu       sync.Mutex
	closed   bool
	cancel   context.CancelFunc
	conn     transport
	attempts int
	timers   map[*time.Timer]struct{}
}

func New(cfg Config, store *activity.Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:    cfg.withDefaults(),
		store:  store,
		jobs:   NewJobRegistry(),
		logger: logger,
		dial:   dialAuto,
		timers: make(map[*time.Timer]struct{}),
	}
}

// Jobs returns the session job registry.
func (m *Manager) Jobs() *JobRegistry {
	return m.jobs
}

// OnStatus registers a connection-status callback. Set it before Run.
func (m *Manager) OnStatus(fn func(Status)) {
	m.onStatus = fn
}

// Run connects and processes messages until ctx is cancelled or Close is
// called. Every connection error schedules a reconnect; Run never returns
// an error of its own.
func (m *Manager) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := m.dial(ctx, m.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Printf("stream connect failed url=%s attempt=%d: %v", m.cfg.URL, m.attempt(), err)
			if !m.sleepBackoff(ctx) {
				return
			}
			continue
		}

		if !m.adopt(conn) {
			conn.Close()
			return
		}
		m.resetAttempts()
		m.notifyStatus(Status{Connected: true})
		m.logger.Printf("stream connected url=%s", m.cfg.URL)

		for {
			data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			m.handleMessage(data)
		}
		conn.Close()
		m.notifyStatus(Status{Connected: false, Attempts: m.attempt()})

		if ctx.Err() != nil {
			return
		}
		if !m.sleepBackoff(ctx) {
			return
		}
	}
}

// Close tears the manager down: the socket is closed, the reconnect loop
// stops, and every pending grace-delay timer is cancelled so no stale
// update can touch a snapshot the UI has abandoned.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	conn := m.conn
	m.conn = nil
	for tm := range m.timers {
		tm.Stop()
	}
	m.timers = make(map[*time.Timer]struct{})
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

func (m *Manager) adopt(conn transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *Manager) resetAttempts() {
	m.mu.Lock()
	m.attempts = 0
	m.mu.Unlock()
}

// backoffDelay computes min(base * 2^attempt, cap).
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if attempt >= 30 {
		return cap
	}
	d := base << uint(attempt)
	if d > cap || d <= 0 {
		return cap
	}
	return d
}

// sleepBackoff waits the current backoff delay and bumps the attempt
// counter. It returns false when the wait was interrupted by teardown.
func (m *Manager) sleepBackoff(ctx context.Context) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, m.attempts)
	m.attempts++
	m.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// scheduleAfter registers a cancellable timer. The callback never fires
// after Close.
func (m *Manager) scheduleAfter(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		m.mu.Lock()
		_, pending := m.timers[tm]
		delete(m.timers, tm)
		closed := m.closed
		m.mu.Unlock()
		if closed || !pending {
			return
		}
		fn()
	})
	m.timers[tm] = struct{}{}
}

func (m *Manager) notifyStatus(st Status) {
	if m.onStatus != nil {
		m.onStatus(st)
	}
}

// envelope is the superset of every message shape the stream can carry.
// Tool arguments and results arrive as arbitrary JSON; they are kept raw
// here and stringified for display.
type envelope struct {
	Type  string `json:"type"`
	Event string `json:"event"`

	JobID   string `json:"job_id"`
	JobType string `json:"job_type"`
	Title   string `json:"title"`
	Message string `json:"message"`

	AgentRole string `json:"agent_role"`
	Model     string `json:"model"`
	LatencyMS int64  `json:"latency_ms"`

	Agent      activity.AgentID   `json:"agent"`
	Tool       string             `json:"tool"`
	ToolArgs   json.RawMessage    `json:"tool_args"`
	ToolResult json.RawMessage    `json:"tool_result"`
	Thinking   string             `json:"thinking"`
	Agents     []activity.AgentID `json:"agents"`

	TS int64 `json:"ts"`
}

// handleMessage parses and dispatches one raw message. Malformed input is
// swallowed: a bad message must never take down the connection or corrupt
// state.
func (m *Manager) handleMessage(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case "job":
		m.handleJob(env)
	case "llm":
		m.handleLLM(env)
	default:
		// Trace-shaped messages may omit the discriminator entirely.
		m.handleTrace(env)
	}
}

func (m *Manager) handleTrace(env envelope) {
	kind := activity.EventKind(env.Event)
	switch kind {
	case activity.EventStart, activity.EventEnd, activity.EventComplete,
		activity.EventToolCall, activity.EventToolResult, activity.EventStatus:
	default:
		return
	}
	m.applyEvent(activity.Event{
		Kind:       kind,
		Agent:      env.Agent,
		Tool:       env.Tool,
		ToolArgs:   rawString(env.ToolArgs),
		ToolResult: rawString(env.ToolResult),
		Thinking:   env.Thinking,
		Message:    env.Message,
		Agents:     env.Agents,
		TS:         eventTS(env),
	})
}

func (m *Manager) handleJob(env envelope) {
	ts := eventTS(env)
	switch env.Event {
	case "start":
		job := m.jobs.Start(env.JobID, env.JobType, env.Title, ts)
		m.applyEvent(activity.Event{
			Kind:    activity.EventStatus,
			Agent:   activity.AgentHub,
			Message: "job started: " + job.Title,
			TS:      ts,
		})
	case "agent_start":
		if env.Agent == "" {
			return
		}
		m.applyEvent(activity.Event{Kind: activity.EventStart, Agent: env.Agent, Message: env.Message, TS: ts})
	case "agent_end":
		if env.Agent == "" {
			return
		}
		m.applyEvent(activity.Event{Kind: activity.EventEnd, Agent: env.Agent, TS: ts})
	case "status":
		agent := env.Agent
		if agent == "" {
			agent = activity.AgentHub
		}
		m.applyEvent(activity.Event{Kind: activity.EventStatus, Agent: agent, Message: env.Message, TS: ts})
	case "complete":
		m.jobs.Finish(env.JobID, activity.JobCompleted)
		if m.store.Snapshot().AnyFiring() {
			return
		}
		// Another agent may pick up work right away; wait out the grace
		// delay before showing "session complete" to avoid flicker.
		m.scheduleAfter(m.cfg.GraceDelay, func() {
			if m.store.Snapshot().AnyFiring() {
				return
			}
			m.applyEvent(activity.Event{Kind: activity.EventComplete, TS: time.Now().UnixMilli()})
		})
	case "failed":
		m.jobs.Finish(env.JobID, activity.JobFailed)
		m.applyEvent(activity.Event{
			Kind:    activity.EventStatus,
			Agent:   activity.AgentHub,
			Message: "job failed: " + env.Message,
			TS:      ts,
		})
		m.applyEvent(activity.Event{Kind: activity.EventComplete, TS: ts})
	}
}

// handleLLM applies legacy low-priority lifecycle events. When a
// conversational stream already owns the snapshot (isActive), these
// globally-scoped events are dropped so two producers never fight over the
// same fields.
func (m *Manager) handleLLM(env envelope) {
	if m.store.Snapshot().IsActive && env.Event == "start" {
		return
	}
	agent := activity.AgentID(env.AgentRole)
	if agent == "" {
		agent = activity.AgentPrimary
	}
	switch env.Event {
	case "start":
		m.applyEvent(activity.Event{Kind: activity.EventStart, Agent: agent, TS: eventTS(env)})
	case "end":
		if m.store.Snapshot().ActiveAgent != agent && m.store.Snapshot().IsActive {
			return
		}
		m.applyEvent(activity.Event{Kind: activity.EventEnd, Agent: agent, TS: eventTS(env)})
	}
}

func (m *Manager) applyEvent(ev activity.Event) {
	m.store.Apply(activity.ApplyEvent(ev, m.store.Snapshot()))
}

func eventTS(env envelope) int64 {
	if env.TS != 0 {
		return env.TS
	}
	return time.Now().UnixMilli()
}

// rawString renders raw JSON for display: quoted strings are unwrapped,
// everything else is kept as compact JSON text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
