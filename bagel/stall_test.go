package bagel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func stallConfig(sampleMillis int, threshold uint8) Config {
	cfg := testConfig(1)
	cfg.StallProbeMillis = sampleMillis
	cfg.StallThreshold = threshold
	return cfg
}

// blocking holds every Apply until release is closed.
type blocking struct {
	minLabel
	release chan struct{}
}

func (b blocking) Apply(state interface{}, msg Message) (interface{}, interface{}, error) {
	<-b.release
	return b.minLabel.Apply(state, msg)
}

func TestBlockedKernelIsADeadlock(t *testing.T) {
	release := make(chan struct{})
	e, err := New(stallConfig(10, 3), chain(3), blocking{release: release})
	if err != nil {
		t.Fatal(err)
	}
	// the run can only return once apply gets out of the kernel
	timer := time.AfterFunc(time.Second, func() { close(release) })
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	res, err := e.Run(ctx, Seed{Vertex: 0, Payload: uint64(0)})
	if !errors.Is(err, ErrDeadlock) {
		t.Fatalf("expected ErrDeadlock, got %v", err)
	}
	if res == nil || res.PEs[0].Inactive {
		t.Errorf("the PE never finished, got %+v", res)
	}
	select {
	case <-e.Done():
		t.Error("Done closed on a stalled run")
	default:
	}
}

// slowCheckpoints takes longer than the whole stall window per write.
type slowCheckpoints struct {
	delay  time.Duration
	mx     sync.Mutex
	rounds []uint64
}

func (c *slowCheckpoints) Checkpoint(pe PEID, round uint64, states map[VertexID]interface{}) error {
	time.Sleep(c.delay)
	c.mx.Lock()
	defer c.mx.Unlock()
	c.rounds = append(c.rounds, round)
	return nil
}

func TestSlowCheckpointIsNotADeadlock(t *testing.T) {
	cp := &slowCheckpoints{delay: 300 * time.Millisecond}
	cfg := stallConfig(20, 5)
	cfg.CheckpointEvery = 1

	res := runEngine(t, cfg, chain(4), hops{}, []Seed{{Vertex: 0, Payload: uint64(0)}}, WithCheckpointer(cp))
	if res.Rounds != 4 {
		t.Errorf("expected 4 rounds, got %d", res.Rounds)
	}
	cp.mx.Lock()
	defer cp.mx.Unlock()
	if len(cp.rounds) != 4 {
		t.Errorf("expected a checkpoint per round, got %v", cp.rounds)
	}
}

// slowSweep spends delay on every vertex at the end of each round.
type slowSweep struct {
	hops
	delay time.Duration
}

func (s slowSweep) Sweep(state interface{}, round uint64) (interface{}, interface{}) {
	time.Sleep(s.delay)
	return state, nil
}

func TestSlowSweepIsNotADeadlock(t *testing.T) {
	// one sweep takes 8 x 15ms, longer than 3 samples of 20ms
	kernel := slowSweep{delay: 15 * time.Millisecond}
	res := runEngine(t, stallConfig(20, 3), chain(8), kernel, []Seed{{Vertex: 0, Payload: uint64(0)}})
	if res.Rounds != 8 {
		t.Errorf("expected 8 rounds, got %d", res.Rounds)
	}
	if got := res.States[7]; got != uint64(7) {
		t.Errorf("vertex 7 reached in round %v", got)
	}
}
