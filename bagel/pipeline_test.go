package bagel

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRoundRobinRotates(t *testing.T) {
	rr := newRoundRobin(3)
	always := func(int) bool { return true }

	var order []int
	for i := 0; i < 6; i++ {
		idx, ok := rr.pick(always)
		if !ok {
			t.Fatalf("pick should grant")
		}
		order = append(order, idx)
	}
	expected := []int{0, 1, 2, 0, 1, 2}
	for i := range expected {
		if order[i] != expected[i] {
			t.Fatalf("grant order %v, expected %v", order, expected)
		}
	}

	// only lane 2 is ready: it is granted and the pointer wraps to 0
	idx, ok := rr.pick(func(i int) bool { return i == 2 })
	if !ok || idx != 2 || rr.next != 0 {
		t.Errorf("got %d %v next=%d", idx, ok, rr.next)
	}
	if _, ok := rr.pick(func(int) bool { return false }); ok {
		t.Errorf("nothing ready, pick should fail")
	}
}

func TestRoundRobinNoStarvation(t *testing.T) {
	const n = 4
	rr := newRoundRobin(n)
	ready := make([]bool, n)
	waited := make([]int, n)

	// lane 0 is always ready; the others become ready in turn and stay
	// ready until granted
	for i := 0; i < 60; i++ {
		ready[0] = true
		ready[1+i%3] = true

		idx, ok := rr.pick(func(j int) bool { return ready[j] })
		if !ok {
			t.Fatalf("pick should grant")
		}
		ready[idx] = false
		waited[idx] = 0
		for j := range ready {
			if ready[j] {
				waited[j]++
				if waited[j] >= n {
					t.Fatalf("lane %d waited %d grants", j, waited[j])
				}
			}
		}
	}
}

func TestCollisionDetector(t *testing.T) {
	d := NewCollisionDetector(2)
	if d.Conflicts(1) {
		t.Errorf("empty detector should not conflict")
	}
	if err := d.Track(1); err != nil {
		t.Fatal(err)
	}
	if err := d.Track(2); err != nil {
		t.Fatal(err)
	}
	if err := d.Track(3); err == nil {
		t.Errorf("a full window should refuse a third write")
	}
	if !d.Conflicts(1) || !d.Conflicts(2) || d.Conflicts(3) {
		t.Errorf("unexpected conflicts with 1 and 2 in flight")
	}

	local, ok := d.Retire()
	if !ok || local != 1 {
		t.Errorf("writes should retire in issue order, got %d", local)
	}
	if d.Conflicts(1) || d.InFlight() != 1 {
		t.Errorf("1 retired, %d in flight", d.InFlight())
	}
	if err := d.Track(1); err != nil {
		t.Errorf("window should have room again: %v", err)
	}
	d.Retire()
	d.Retire()
	if _, ok := d.Retire(); ok {
		t.Errorf("retire on an empty detector")
	}
}

func TestVertexStore(t *testing.T) {
	s := NewVertexStore(3)
	s.Write(1, "b")
	if s.Read(1) != "b" || s.Read(0) != nil || s.Len() != 3 {
		t.Errorf("unexpected store contents %v", s.Snapshot())
	}
	snap := s.Snapshot()
	snap[1] = "changed"
	if s.Read(1) != "b" {
		t.Errorf("snapshot should be a copy")
	}
}

func TestBarrierCounter(t *testing.T) {
	b := NewBarrierCounter(2)

	if err := b.ObserveUpdate(0, 0); err != nil {
		t.Fatal(err)
	}
	// next round traffic is counted separately
	if err := b.ObserveUpdate(1, 1); err != nil {
		t.Fatal(err)
	}
	if err := b.ObserveUpdate(1, 2); !errors.Is(err, ErrRoundTagMismatch) {
		t.Errorf("round 2 while accepting 0: expected ErrRoundTagMismatch, got %v", err)
	}

	if err := b.ObserveBarrier(0, 0, 2, false); err != nil {
		t.Fatal(err)
	}
	if err := b.ObserveBarrier(0, 0, 2, false); err == nil {
		t.Errorf("duplicate barrier should be reported")
	}
	if err := b.ObserveBarrier(1, 0, 0, true); err != nil {
		t.Fatal(err)
	}
	if b.Ready() || b.Outstanding() != 1 {
		t.Fatalf("one declared update is missing: ready=%v outstanding=%d", b.Ready(), b.Outstanding())
	}

	if err := b.ObserveUpdate(0, 0); err != nil {
		t.Fatal(err)
	}
	if !b.Ready() {
		t.Fatalf("every barrier and update arrived")
	}
	merged := b.Advance()
	if merged.Kind != BarrierMsg || merged.Round != 0 || merged.Count != 2 || merged.Halt {
		t.Errorf("unexpected merged barrier %v", merged)
	}
	if b.Accepting() != 1 {
		t.Errorf("accepting should move to 1, got %d", b.Accepting())
	}

	// round 1 keeps the update observed early
	if err := b.ObserveBarrier(0, 1, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := b.ObserveBarrier(1, 1, 1, true); err != nil {
		t.Fatal(err)
	}
	if !b.Ready() {
		t.Fatalf("round 1 should be ready")
	}
	merged = b.Advance()
	if merged.Round != 1 || merged.Count != 1 || !merged.Halt {
		t.Errorf("unexpected merged barrier %v", merged)
	}
	if err := b.ObserveUpdate(0, 0); !errors.Is(err, ErrRoundTagMismatch) {
		t.Errorf("closed round: expected ErrRoundTagMismatch, got %v", err)
	}
}

func TestBarrierCounterOverCount(t *testing.T) {
	b := NewBarrierCounter(1)
	if err := b.ObserveBarrier(0, 0, 1, false); err != nil {
		t.Fatal(err)
	}
	if err := b.ObserveUpdate(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := b.ObserveUpdate(0, 0); err == nil {
		t.Errorf("more updates than declared should be reported")
	}
}

func TestArbiterOrdersRounds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inbox := newInbox(2, 8)
	out := make(chan Message, 8)
	stop := make(chan struct{})
	a := newArbiter(0, inbox, out, stop, newPECounters(0))

	// source 1 is already a round ahead
	deliver := func(src PEID, m Message) {
		if err := inbox.deliver(ctx, src, m); err != nil {
			t.Fatal(err)
		}
	}
	deliver(1, NewBarrier(0, 1, 0, false))
	deliver(1, NewUpdate(1, 1, 7, 9, "early"))
	deliver(0, NewUpdate(0, 0, 7, 8, "now"))
	deliver(0, NewBarrier(0, 0, 1, false))

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	var got []Message
	for len(got) < 3 {
		select {
		case m := <-out:
			got = append(got, m)
		case <-ctx.Done():
			t.Fatalf("arbiter delivered only %v", got)
		}
	}
	close(stop)
	if err := <-done; err != nil {
		t.Errorf("arbiter returned %v", err)
	}

	if got[0].IsBarrier() || got[0].Round != 0 || got[0].Payload != "now" {
		t.Errorf("first should be the round 0 update, got %v", got[0])
	}
	if !got[1].IsBarrier() || got[1].Round != 0 || got[1].Count != 1 || got[1].Halt {
		t.Errorf("second should be the merged round 0 barrier, got %v", got[1])
	}
	if got[2].IsBarrier() || got[2].Round != 1 || got[2].Payload != "early" {
		t.Errorf("third should be the round 1 update, got %v", got[2])
	}
}

// counter adds one per update and never scatters.
type counter struct{}

func (counter) Init(id VertexID, degree int) interface{} { return 0 }

func (counter) Apply(state interface{}, msg Message) (interface{}, interface{}, error) {
	return state.(int) + 1, nil, nil
}

func (counter) Scatter(payload interface{}, neighbor VertexID, edge interface{}) (bool, interface{}) {
	return false, nil
}

func TestApplyDefersCollidingUpdate(t *testing.T) {
	const latency = 4
	layout, _, err := BuildLayout(Adjacency{1: nil}, 1, nil, Capacity{})
	if err != nil {
		t.Fatal(err)
	}
	store := NewVertexStore(1)
	store.Write(0, 0)
	stats := newPECounters(0)

	in := make(chan Message, 4)
	out := make(chan scatterItem, 4)
	in <- NewUpdate(0, 0, 1, 1, nil)
	in <- NewUpdate(0, 0, 1, 1, nil)
	in <- NewBarrier(0, 0, 2, false)
	in <- NewBarrier(1, 0, 0, true)

	var inactiveRound uint64
	a := newApplyStage(0, counter{}, layout, store, latency, in, out, stats)
	a.onInactive = func(pe PEID, round uint64) { inactiveRound = round }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.run(ctx); err != nil {
		t.Fatalf("apply returned %v", err)
	}

	if v := store.Read(0); v != 2 {
		t.Errorf("both updates should apply, state is %v", v)
	}
	s := stats.snapshot(0)
	if s.Collisions != 1 {
		t.Errorf("expected 1 collision, got %d", s.Collisions)
	}
	if s.StallCycles != latency-1 {
		t.Errorf("second update should wait %d cycles, waited %d", latency-1, s.StallCycles)
	}
	if s.Applied != 2 {
		t.Errorf("expected 2 applied, got %d", s.Applied)
	}
	if inactiveRound != 1 || !s.Inactive {
		t.Errorf("PE should go inactive at round 1, got %d", inactiveRound)
	}

	item, ok := <-out
	if !ok || !item.barrier || item.round != 0 {
		t.Errorf("round 0 should be closed towards scatter, got %+v", item)
	}
	if _, ok := <-out; ok {
		t.Errorf("scatter queue should be closed after halting")
	}
}

func TestApplyDistinctVerticesDoNotCollide(t *testing.T) {
	layout, _, err := BuildLayout(Adjacency{1: nil, 2: nil}, 1, nil, Capacity{})
	if err != nil {
		t.Fatal(err)
	}
	store := NewVertexStore(2)
	store.Write(0, 0)
	store.Write(1, 0)
	stats := newPECounters(0)

	in := make(chan Message, 4)
	out := make(chan scatterItem, 4)
	in <- NewUpdate(0, 0, 1, 1, nil)
	in <- NewUpdate(0, 0, 2, 2, nil)
	in <- NewBarrier(0, 0, 2, false)
	in <- NewBarrier(1, 0, 0, true)

	a := newApplyStage(0, counter{}, layout, store, 4, in, out, stats)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.run(ctx); err != nil {
		t.Fatal(err)
	}
	if s := stats.snapshot(0); s.Collisions != 0 || s.StallCycles != 0 {
		t.Errorf("independent updates should pipeline, got %+v", s)
	}
}
