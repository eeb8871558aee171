// Package forcesim is a force-directed 2-D layout engine for the agent
// topology graph. It owns node positions and runs independently of any
// rendering surface: callers drive Step from their own loop and read
// Positions whenever they want to draw.
package forcesim

import (
	"math"
	"math/rand"
	"sync"

	"aether_monitor/internal/activity"
)

type Node struct {
	ID     activity.AgentID
	X, Y   float64
	VX, VY float64
	// Pinned means the position is authoritative: simulation forces keep
	// being computed for neighbors but this node ignores their result
	// until released.
	Pinned bool
}

type Position struct {
	X, Y float64
}

type Params struct {
	// RepulsionHub and RepulsionLeaf scale the pairwise push-apart force;
	// the hub repels harder so it stays visually separated.
	RepulsionHub  float64
	RepulsionLeaf float64
	// SpringLength is the rest length of edge springs; SpringStrength
	// below 1 keeps edges elastic rather than rigid.
	SpringLength   float64
	SpringStrength float64
	// CenterStrength is the weak pull toward the container midpoint.
	CenterStrength float64
	// RadiusHub and RadiusLeaf size collision avoidance per node.
	RadiusHub  float64
	RadiusLeaf float64
	// AlphaDecay drains the energy scalar each step; AlphaFloor is the
	// level it is clamped to while ambient jitter keeps the layout alive.
	AlphaDecay float64
	AlphaFloor float64
	// JitterAmplitude bounds the random per-node velocity perturbation
	// injected when the simulation cools down.
	JitterAmplitude float64
	// Damping is the per-step velocity retention factor.
	Damping float64
}

func DefaultParams() Params {
	return Params{
		RepulsionHub:    2400,
		RepulsionLeaf:   900,
		SpringLength:    22,
		SpringStrength:  0.25,
		CenterStrength:  0.03,
		RadiusHub:       7,
		RadiusLeaf:      4,
		AlphaDecay:      0.97,
		AlphaFloor:      0.02,
		JitterAmplitude: 0.35,
		Damping:         0.82,
	}
}

const (
	dragHeat    = 0.6
	releaseHeat = 0.35
	wakeHeat    = 0.3
	resizeHeat  = 0.4
	startAlpha  = 1.0
)

// Simulation owns node and edge arrays and an energy scalar (alpha). It is
// safe for concurrent use: the step loop and pointer-event handlers run on
// different goroutines.
type Simulation struct {
	mu     sync.Mutex
	params Params

	nodes []*Node
	index map[activity.AgentID]*Node
	edges []activity.Edge

	cx, cy float64
	alpha  float64

	// reducedMotion disables ambient jitter and lets alpha reach zero so
	// the layout settles completely.
	reducedMotion bool

	dragging activity.AgentID
	rng      *rand.Rand
}

func New(params Params, seed int64) *Simulation {
	return &Simulation{
		params: params,
		index:  make(map[activity.AgentID]*Node),
		alpha:  startAlpha,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// SetReducedMotion toggles the reduced-motion preference.
func (s *Simulation) SetReducedMotion(v bool) {
	s.mu.Lock()
	s.reducedMotion = v
	s.mu.Unlock()
}

// SetCenter moves the centering-force target, typically after a container
// resize, and reheats so the layout glides to the new midpoint instead of
// jumping.
func (s *Simulation) SetCenter(cx, cy float64) {
	s.mu.Lock()
	if s.cx != cx || s.cy != cy {
		s.cx = cx
		s.cy = cy
		if s.alpha < resizeHeat {
			s.alpha = resizeHeat
		}
	}
	s.mu.Unlock()
}

// SetGraph reconciles the node set with the given agent list and replaces
// the edge set. Existing nodes keep their position and velocity; new nodes
// spawn near the center with a small deterministic scatter.
func (s *Simulation) SetGraph(agents []activity.AgentID, edges []activity.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	present := make(map[activity.AgentID]bool, len(agents))
	for _, id := range agents {
		present[id] = true
		if _, ok := s.index[id]; ok {
			continue
		}
		n := &Node{
			ID: id,
			X:  s.cx + (s.rng.Float64()-0.5)*s.params.SpringLength,
			Y:  s.cy + (s.rng.Float64()-0.5)*s.params.SpringLength,
		}
		s.nodes = append(s.nodes, n)
		s.index[id] = n
	}

	if len(present) != len(s.nodes) {
		kept := s.nodes[:0]
		for _, n := range s.nodes {
			if present[n.ID] {
				kept = append(kept, n)
			} else {
				delete(s.index, n.ID)
			}
		}
		s.nodes = kept
	}

	s.edges = edges
}

// Reheat raises the energy scalar to at least the given level. Use it when
// the graph should visibly react, e.g. an agent transitioning to firing.
func (s *Simulation) Reheat(level float64) {
	s.mu.Lock()
	if s.alpha < level {
		s.alpha = level
	}
	s.mu.Unlock()
}

// Wake nudges a cool simulation in response to new activity without
// restarting a hot one.
func (s *Simulation) Wake() {
	s.Reheat(wakeHeat)
}

// Pin starts a drag: the node's position becomes authoritative and the
// simulation reheats so neighbors react to the manipulation.
func (s *Simulation) Pin(id activity.AgentID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return false
	}
	n.Pinned = true
	n.VX, n.VY = 0, 0
	s.dragging = id
	if s.alpha < dragHeat {
		s.alpha = dragHeat
	}
	return true
}

// Drag overwrites the pinned node's coordinate. Callers convert pointer
// screen coordinates into simulation space before calling.
func (s *Simulation) Drag(id activity.AgentID, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok || !n.Pinned {
		return
	}
	n.X, n.Y = x, y
	if s.alpha < dragHeat {
		s.alpha = dragHeat
	}
}

// Release ends a drag: the node returns to pure physics control with a
// moderate reheat so it settles back instead of freezing in place.
func (s *Simulation) Release(id activity.AgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return
	}
	n.Pinned = false
	if s.dragging == id {
		s.dragging = ""
	}
	if s.alpha < releaseHeat {
		s.alpha = releaseHeat
	}
}

// Dragging reports the node currently being dragged, if any.
func (s *Simulation) Dragging() (activity.AgentID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dragging, s.dragging != ""
}

// Alpha returns the current energy scalar.
func (s *Simulation) Alpha() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alpha
}

// Step advances the simulation by one tick: accumulate forces, integrate
// velocities, decay alpha, and inject ambient jitter at the floor.
func (s *Simulation) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.alpha <= 0 {
		return
	}

	fx := make([]float64, len(s.nodes))
	fy := make([]float64, len(s.nodes))

	s.accumulateRepulsion(fx, fy)
	s.accumulateSprings(fx, fy)
	s.accumulateCentering(fx, fy)

	for i, n := range s.nodes {
		if n.Pinned {
			// Forces were computed so neighbors feel the pinned node,
			// but its own coordinate stays wherever the pointer put it.
			n.VX, n.VY = 0, 0
			continue
		}
		n.VX = (n.VX + fx[i]*s.alpha) * s.params.Damping
		n.VY = (n.VY + fy[i]*s.alpha) * s.params.Damping
		n.X += n.VX
		n.Y += n.VY
	}

	s.resolveCollisions()

	s.alpha *= s.params.AlphaDecay
	if s.reducedMotion {
		// Allowed to settle completely.
		if s.alpha < 1e-4 {
			s.alpha = 0
		}
		return
	}
	if s.alpha < s.params.AlphaFloor {
		s.alpha = s.params.AlphaFloor
		for _, n := range s.nodes {
			if n.Pinned {
				continue
			}
			n.VX += (s.rng.Float64()*2 - 1) * s.params.JitterAmplitude
			n.VY += (s.rng.Float64()*2 - 1) * s.params.JitterAmplitude
		}
	}
}

func (s *Simulation) accumulateRepulsion(fx, fy []float64) {
	for i := 0; i < len(s.nodes); i++ {
		for j := i + 1; j < len(s.nodes); j++ {
			a, b := s.nodes[i], s.nodes[j]
			dx := b.X - a.X
			dy := b.Y - a.Y
			distSq := dx*dx + dy*dy
			if distSq < 0.01 {
				// Coincident nodes get a deterministic nudge apart.
				dx, dy = 0.1, 0.1
				distSq = 0.02
			}
			dist := math.Sqrt(distSq)
			strength := s.repulsionFor(a.ID) + s.repulsionFor(b.ID)
			f := strength / distSq / 100
			ux, uy := dx/dist, dy/dist
			fx[i] -= ux * f
			fy[i] -= uy * f
			fx[j] += ux * f
			fy[j] += uy * f
		}
	}
}

func (s *Simulation) accumulateSprings(fx, fy []float64) {
	idx := make(map[activity.AgentID]int, len(s.nodes))
	for i, n := range s.nodes {
		idx[n.ID] = i
	}
	for _, e := range s.edges {
		i, ok := idx[e.Source]
		if !ok {
			continue
		}
		j, ok := idx[e.Target]
		if !ok {
			continue
		}
		a, b := s.nodes[i], s.nodes[j]
		dx := b.X - a.X
		dy := b.Y - a.Y
		dist := math.Hypot(dx, dy)
		if dist < 0.01 {
			continue
		}
		// Elastic pull toward the rest length.
		f := (dist - s.params.SpringLength) * s.params.SpringStrength / dist
		fx[i] += dx * f
		fy[i] += dy * f
		fx[j] -= dx * f
		fy[j] -= dy * f
	}
}

func (s *Simulation) accumulateCentering(fx, fy []float64) {
	for i, n := range s.nodes {
		fx[i] += (s.cx - n.X) * s.params.CenterStrength
		fy[i] += (s.cy - n.Y) * s.params.CenterStrength
	}
}

func (s *Simulation) resolveCollisions() {
	for i := 0; i < len(s.nodes); i++ {
		for j := i + 1; j < len(s.nodes); j++ {
			a, b := s.nodes[i], s.nodes[j]
			minDist := s.radiusFor(a.ID) + s.radiusFor(b.ID)
			dx := b.X - a.X
			dy := b.Y - a.Y
			dist := math.Hypot(dx, dy)
			if dist >= minDist || dist < 1e-9 {
				continue
			}
			overlap := (minDist - dist) / 2
			ux, uy := dx/dist, dy/dist
			switch {
			case a.Pinned && b.Pinned:
				// Both authoritative; leave them.
			case a.Pinned:
				b.X += ux * overlap * 2
				b.Y += uy * overlap * 2
			case b.Pinned:
				a.X -= ux * overlap * 2
				a.Y -= uy * overlap * 2
			default:
				a.X -= ux * overlap
				a.Y -= uy * overlap
				b.X += ux * overlap
				b.Y += uy * overlap
			}
		}
	}
}

func (s *Simulation) repulsionFor(id activity.AgentID) float64 {
	if id == activity.AgentHub {
		return s.params.RepulsionHub
	}
	return s.params.RepulsionLeaf
}

func (s *Simulation) radiusFor(id activity.AgentID) float64 {
	if id == activity.AgentHub {
		return s.params.RadiusHub
	}
	return s.params.RadiusLeaf
}

// Positions returns a copy of every node's current position.
func (s *Simulation) Positions() map[activity.AgentID]Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[activity.AgentID]Position, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID] = Position{X: n.X, Y: n.Y}
	}
	return out
}

// Velocity returns a node's current velocity, primarily for tests.
func (s *Simulation) Velocity(id activity.AgentID) (vx, vy float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, found := s.index[id]
	if !found {
		return 0, 0, false
	}
	return n.VX, n.VY, true
}
