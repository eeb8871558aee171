package source

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"aether_monitor/internal/activity"
)

// Scenario drives the hub with a scripted delegation session on repeat, so
// the monitor can be exercised without a live agent backend.
type Scenario struct {
	hub    *Hub
	logger *log.Logger
	rng    *rand.Rand

	// Pause between full sessions; shortened in tests.
	SessionGap time.Duration
	// Base pacing for intra-session beats.
	Beat time.Duration
}

func NewScenario(hub *Hub, logger *log.Logger, seed int64) *Scenario {
	if logger == nil {
		logger = log.Default()
	}
	return &Scenario{
		hub:        hub,
		logger:     logger,
		rng:        rand.New(rand.NewSource(seed)),
		SessionGap: 6 * time.Second,
		Beat:       900 * time.Millisecond,
	}
}

// Start runs scripted sessions until the context is cancelled.
func (s *Scenario) Start(ctx context.Context) {
	go func() {
		for {
			s.runSession(ctx)
			if !s.pause(ctx, s.SessionGap) {
				return
			}
		}
	}()
}

func (s *Scenario) runSession(ctx context.Context) {
	jobID := uuid.NewString()
	s.logger.Printf("scenario: starting session %s", jobID)

	s.emit(map[string]any{
		"type": "job", "event": "start",
		"job_id": jobID, "job_type": "automation", "title": "Evening wind-down routine",
	})
	if !s.beat(ctx) {
		return
	}

	s.emit(map[string]any{
		"type": "trace", "event": "start",
		"agent": activity.AgentPrimary, "thinking": "Breaking the request into scene and device work.",
	})
	if !s.beat(ctx) {
		return
	}

	s.emit(map[string]any{
		"type": "trace", "event": "tool_call",
		"agent": activity.AgentPrimary, "tool": "list_rooms", "tool_args": map[string]any{"floor": "all"},
	})
	s.emit(map[string]any{
		"type": "trace", "event": "tool_result",
		"agent": activity.AgentPrimary, "tool": "list_rooms", "tool_result": []string{"living_room", "bedroom", "office"},
	})
	if !s.beat(ctx) {
		return
	}

	for _, specialist := range []activity.AgentID{"scene_composer", "device_controller"} {
		s.emit(map[string]any{
			"type": "trace", "event": "start",
			"agent": specialist, "message": "dim shared spaces and stage the bedroom",
		})
		if !s.beat(ctx) {
			return
		}
		s.emit(map[string]any{
			"type": "trace", "event": "tool_call",
			"agent": specialist, "tool": "set_scene", "tool_args": map[string]any{"scene": "wind-down"},
		})
		s.emit(map[string]any{
			"type": "trace", "event": "tool_result",
			"agent": specialist, "tool": "set_scene", "tool_result": "ok",
		})
		if !s.beat(ctx) {
			return
		}
		s.emit(map[string]any{
			"type": "trace", "event": "end",
			"agent": specialist,
		})
		if !s.beat(ctx) {
			return
		}
	}

	s.emit(map[string]any{
		"type": "trace", "event": "status",
		"agent": activity.AgentPrimary, "message": "reviewing specialist results",
	})
	if !s.beat(ctx) {
		return
	}

	s.emit(map[string]any{
		"type": "trace", "event": "end",
		"agent": activity.AgentPrimary,
	})
	s.emit(map[string]any{
		"type": "job", "event": "complete",
		"job_id": jobID,
	})
	s.logger.Printf("scenario: session %s complete", jobID)
}

func (s *Scenario) emit(fields map[string]any) {
	if _, ok := fields["ts"]; !ok {
		fields["ts"] = time.Now().UnixMilli()
	}
	data, err := json.Marshal(fields)
	if err != nil {
		s.logger.Printf("scenario: marshal: %v", err)
		return
	}
	s.hub.Publish(data)
}

// beat sleeps for one pacing interval with a little jitter.
func (s *Scenario) beat(ctx context.Context) bool {
	jitter := time.Duration(s.rng.Int63n(int64(s.Beat)/2 + 1))
	return s.pause(ctx, s.Beat+jitter)
}

func (s *Scenario) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
