package sim

// Trail is a bounded oldest-first history of robot positions. It is owned by
// the simulation loop and is not safe for concurrent use.
type Trail struct {
	points  []Vec
	start   int
	size    int
	epsilon float64
}

// NewTrail creates a trail keeping at most capacity points. A point is only
// recorded when it lies farther than epsilon from the previous one.
func NewTrail(capacity int, epsilon float64) *Trail {
	if capacity < 0 {
		capacity = 0
	}
	return &Trail{points: make([]Vec, capacity), epsilon: epsilon}
}

// Len returns the number of recorded points.
func (t *Trail) Len() int {
	return t.size
}

// Cap returns the maximum number of points kept.
func (t *Trail) Cap() int {
	return len(t.points)
}

// Record appends pos unless it is within epsilon of the last point. Once the
// trail is full the oldest point is evicted.
func (t *Trail) Record(pos Vec) bool {
	if len(t.points) == 0 {
		return false
	}
	if t.size > 0 && t.last().Dist(pos) <= t.epsilon {
		return false
	}
	if t.size < len(t.points) {
		t.points[(t.start+t.size)%len(t.points)] = pos
		t.size++
		return true
	}
	t.points[t.start] = pos
	t.start = (t.start + 1) % len(t.points)
	return true
}

func (t *Trail) last() Vec {
	return t.points[(t.start+t.size-1)%len(t.points)]
}

// Snapshot copies the trail, oldest point first.
func (t *Trail) Snapshot() []Vec {
	out := make([]Vec, t.size)
	for i := range out {
		out[i] = t.points[(t.start+i)%len(t.points)]
	}
	return out
}

// Reset drops every point.
func (t *Trail) Reset() {
	t.start, t.size = 0, 0
}
