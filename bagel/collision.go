package bagel

import "fmt"

// CollisionDetector remembers the targets of writes still in flight in the
// apply pipeline. Writes commit in issue order, so the window is a ring.
type CollisionDetector struct {
	ring  []LocalID
	head  int
	count int
}

func NewCollisionDetector(depth int) *CollisionDetector {
	if depth < 1 {
		depth = 1
	}
	return &CollisionDetector{ring: make([]LocalID, depth)}
}

// Conflicts reports whether a write to local has not committed yet.
func (d *CollisionDetector) Conflicts(local LocalID) bool {
	for i := 0; i < d.count; i++ {
		if d.ring[(d.head+i)%len(d.ring)] == local {
			return true
		}
	}
	return false
}

// Track records a newly issued write.
func (d *CollisionDetector) Track(local LocalID) error {
	if d.count == len(d.ring) {
		return fmt.Errorf("collision window full (%d in flight)", d.count)
	}
	d.ring[(d.head+d.count)%len(d.ring)] = local
	d.count++
	return nil
}

// Retire drops the oldest in-flight write.
func (d *CollisionDetector) Retire() (LocalID, bool) {
	if d.count == 0 {
		return 0, false
	}
	local := d.ring[d.head]
	d.head = (d.head + 1) % len(d.ring)
	d.count--
	return local, true
}

func (d *CollisionDetector) InFlight() int {
	return d.count
}
