package forcesim

import (
	"math"
	"testing"

	"aether_monitor/internal/activity"
)

func newTestSim() *Simulation {
	sim := New(DefaultParams(), 42)
	sim.SetCenter(50, 50)
	sim.SetGraph(
		[]activity.AgentID{activity.AgentHub, activity.AgentPrimary, "scene_composer"},
		[]activity.Edge{
			{Source: activity.AgentHub, Target: activity.AgentPrimary},
			{Source: activity.AgentPrimary, Target: "scene_composer"},
		},
	)
	return sim
}

func TestPinnedPositionIsAuthoritative(t *testing.T) {
	sim := newTestSim()
	if !sim.Pin(activity.AgentPrimary) {
		t.Fatalf("pin failed for present node")
	}

	moves := []Position{{X: 10, Y: 12}, {X: 11, Y: 13}, {X: 30, Y: 8}}
	for _, m := range moves {
		sim.Drag(activity.AgentPrimary, m.X, m.Y)
		// Forces keep running between pointer moves.
		sim.Step()
		sim.Step()

		pos := sim.Positions()[activity.AgentPrimary]
		if pos != m {
			t.Fatalf("pinned position drifted to %+v, want %+v", pos, m)
		}
	}
}

func TestReleaseRestoresPhysicsWithinOneStep(t *testing.T) {
	sim := newTestSim()
	sim.Pin(activity.AgentPrimary)
	// Drag well away from the center so spring and centering forces are
	// clearly nonzero on release.
	sim.Drag(activity.AgentPrimary, 200, 200)
	sim.Step()

	sim.Release(activity.AgentPrimary)
	sim.Step()

	vx, vy, ok := sim.Velocity(activity.AgentPrimary)
	if !ok {
		t.Fatalf("node disappeared")
	}
	if vx == 0 && vy == 0 {
		t.Fatalf("released node still frozen after one step")
	}
	if _, dragging := sim.Dragging(); dragging {
		t.Fatalf("drag id not cleared on release")
	}
}

func TestAmbientJitterKeepsAlphaAtFloor(t *testing.T) {
	sim := newTestSim()
	params := DefaultParams()

	for i := 0; i < 500; i++ {
		sim.Step()
	}
	if got := sim.Alpha(); got < params.AlphaFloor {
		t.Fatalf("alpha = %v, must never drop below floor %v", got, params.AlphaFloor)
	}

	// At the floor, unpinned nodes keep receiving small perturbations.
	sim.Step()
	moved := false
	for _, id := range []activity.AgentID{activity.AgentHub, activity.AgentPrimary, "scene_composer"} {
		vx, vy, _ := sim.Velocity(id)
		if vx != 0 || vy != 0 {
			moved = true
		}
	}
	if !moved {
		t.Fatalf("no ambient motion at the alpha floor")
	}
}

func TestReducedMotionSettlesCompletely(t *testing.T) {
	sim := newTestSim()
	sim.SetReducedMotion(true)

	for i := 0; i < 1000; i++ {
		sim.Step()
	}
	if got := sim.Alpha(); got != 0 {
		t.Fatalf("alpha = %v, want full settle under reduced motion", got)
	}

	before := sim.Positions()
	sim.Step()
	after := sim.Positions()
	for id, p := range before {
		if after[id] != p {
			t.Fatalf("node %s moved after settling: %+v -> %+v", id, p, after[id])
		}
	}
}

func TestSetCenterRecentersLayout(t *testing.T) {
	sim := newTestSim()
	for i := 0; i < 200; i++ {
		sim.Step()
	}

	sim.SetCenter(500, 300)
	if sim.Alpha() < resizeHeat {
		t.Fatalf("resize did not reheat: alpha = %v", sim.Alpha())
	}
	for i := 0; i < 600; i++ {
		sim.Step()
	}

	var cx, cy float64
	positions := sim.Positions()
	for _, p := range positions {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(positions))
	cy /= float64(len(positions))

	if math.Hypot(cx-500, cy-300) > 60 {
		t.Fatalf("centroid (%.1f, %.1f) did not follow the new center", cx, cy)
	}
}

func TestCollisionKeepsNodesApart(t *testing.T) {
	sim := newTestSim()
	params := DefaultParams()
	for i := 0; i < 300; i++ {
		sim.Step()
	}

	positions := sim.Positions()
	ids := []activity.AgentID{activity.AgentHub, activity.AgentPrimary, "scene_composer"}
	minLeafGap := params.RadiusLeaf * 2 * 0.5
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := positions[ids[i]], positions[ids[j]]
			if math.Hypot(a.X-b.X, a.Y-b.Y) < minLeafGap {
				t.Fatalf("nodes %s and %s overlap: %+v %+v", ids[i], ids[j], a, b)
			}
		}
	}
}

func TestWakeOnlyHeatsCoolSimulation(t *testing.T) {
	sim := newTestSim()
	for i := 0; i < 500; i++ {
		sim.Step()
	}
	sim.Wake()
	if got := sim.Alpha(); got < wakeHeat {
		t.Fatalf("wake did not reheat: alpha = %v", got)
	}

	sim.Reheat(0.9)
	sim.Wake()
	if got := sim.Alpha(); got != 0.9 {
		t.Fatalf("wake downgraded a hot simulation to %v", got)
	}
}

func TestSetGraphKeepsExistingNodePositions(t *testing.T) {
	sim := newTestSim()
	for i := 0; i < 50; i++ {
		sim.Step()
	}
	before := sim.Positions()[activity.AgentPrimary]

	sim.SetGraph(
		[]activity.AgentID{activity.AgentHub, activity.AgentPrimary, "scene_composer", "energy_auditor"},
		nil,
	)
	after := sim.Positions()[activity.AgentPrimary]
	if before != after {
		t.Fatalf("existing node repositioned on graph update: %+v -> %+v", before, after)
	}
	if _, ok := sim.Positions()["energy_auditor"]; !ok {
		t.Fatalf("new node not added")
	}
}
