package bagel

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// Phase is the state of an apply stage.
type Phase uint8

const (
	PhaseReceive Phase = iota
	PhaseLookup
	PhaseKernel
	PhaseCommit
	PhaseBarrier
	PhaseHalted
)

func (p Phase) String() string {
	switch p {
	case PhaseReceive:
		return "RECEIVE"
	case PhaseLookup:
		return "LOOKUP"
	case PhaseKernel:
		return "KERNEL"
	case PhaseCommit:
		return "COMMIT"
	case PhaseBarrier:
		return "BARRIER"
	case PhaseHalted:
		return "HALTED"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// scatterItem is what apply hands to scatter: either an outbound payload
// of one vertex or the end of a round.
type scatterItem struct {
	barrier bool
	round   uint64
	vertex  VertexID
	local   LocalID
	payload interface{}
}

type inflightWrite struct {
	local    LocalID
	vertex   VertexID
	round    uint64
	state    interface{}
	outbound interface{}
	due      uint64
}

// applyStage runs the RECEIVE -> LOOKUP -> KERNEL -> COMMIT pipeline of one
// PE, one cycle at a time. A kernel result commits latency cycles after it
// was issued; reads of a vertex with a write in flight wait for it.
type applyStage struct {
	pe       PEID
	kernel   Kernel
	sweeper  Sweeper
	layout   *Layout
	store    *VertexStore
	detector *CollisionDetector
	latency  uint64

	in     <-chan Message
	out    chan<- scatterItem
	halted chan struct{}

	checkpointer    Checkpointer
	checkpointEvery uint64
	onInactive      func(PEID, uint64)

	stats *peCounters

	cycle    uint64
	round    uint64
	phase    Phase
	pipe     []inflightWrite
	pending  *Message
	deferred bool

	mx        sync.Mutex
	kernelErr *KernelError
}

func newApplyStage(
	pe PEID, kernel Kernel, layout *Layout, store *VertexStore, latency int,
	in <-chan Message, out chan<- scatterItem, stats *peCounters,
) *applyStage {
	a := &applyStage{
		pe:       pe,
		kernel:   kernel,
		layout:   layout,
		store:    store,
		detector: NewCollisionDetector(latency),
		latency:  uint64(latency),
		in:       in,
		out:      out,
		halted:   make(chan struct{}),
		stats:    stats,
	}
	if s, ok := kernel.(Sweeper); ok {
		a.sweeper = s
	}
	return a
}

func (a *applyStage) KernelError() *KernelError {
	a.mx.Lock()
	defer a.mx.Unlock()
	return a.kernelErr
}

func (a *applyStage) run(ctx context.Context) error {
	defer close(a.out)
	defer close(a.halted)

	for {
		a.cycle++
		a.stats.cycles.Add(1)

		if err := a.retire(ctx); err != nil {
			return err
		}

		if a.pending == nil {
			a.phase = PhaseReceive
			m, ok, err := a.receive(ctx)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			a.pending = &m
		}

		m := *a.pending
		if m.IsBarrier() {
			a.phase = PhaseBarrier
			if a.detector.InFlight() > 0 {
				// at most latency cycles until the last write commits
				runtime.Gosched()
				continue
			}
			a.pending = nil
			halted, err := a.closeRound(ctx, m)
			if err != nil {
				return err
			}
			if halted {
				return nil
			}
			continue
		}

		a.phase = PhaseLookup
		addr, err := a.layout.Home(m.Dest)
		if err != nil || addr.PE != a.pe {
			log.Error().
				Uint32("pe", uint32(a.pe)).
				Str("msg", m.String()).
				Msg("apply: update for a vertex this PE does not own")
			a.pending = nil
			continue
		}
		if a.detector.Conflicts(addr.Local) {
			if !a.deferred {
				a.deferred = true
				a.stats.addCollision()
			}
			a.stats.addStall()
			continue
		}
		a.pending = nil
		a.deferred = false
		if err := a.issue(addr.Local, m); err != nil {
			return err
		}
	}
}

// receive blocks only when nothing is in flight; otherwise the clock has
// to keep running so pending writes can commit.
func (a *applyStage) receive(ctx context.Context) (Message, bool, error) {
	if len(a.pipe) == 0 {
		select {
		case m := <-a.in:
			return m, true, nil
		case <-ctx.Done():
			return Message{}, false, ctx.Err()
		}
	}
	select {
	case m := <-a.in:
		return m, true, nil
	default:
		return Message{}, false, nil
	}
}

func (a *applyStage) issue(local LocalID, m Message) error {
	a.phase = PhaseKernel
	state := a.store.Read(local)
	a.stats.beat()
	newState, outbound, err := a.kernel.Apply(state, m)
	a.stats.beat()
	if err != nil {
		a.recordKernelError(m, err)
		return nil
	}

	if err := a.detector.Track(local); err != nil {
		return fmt.Errorf("apply: PE %d: %w", a.pe, err)
	}
	a.phase = PhaseCommit
	a.pipe = append(a.pipe, inflightWrite{
		local:    local,
		vertex:   m.Dest,
		round:    m.Round,
		state:    newState,
		outbound: outbound,
		due:      a.cycle + a.latency,
	})
	return nil
}

func (a *applyStage) retire(ctx context.Context) error {
	for len(a.pipe) > 0 && a.pipe[0].due <= a.cycle {
		w := a.pipe[0]
		a.pipe = a.pipe[1:]
		a.store.Write(w.local, w.state)
		a.detector.Retire()
		a.stats.addApplied()

		if w.outbound == nil {
			continue
		}
		item := scatterItem{
			round:   w.round,
			vertex:  w.vertex,
			local:   w.local,
			payload: w.outbound,
		}
		if err := a.forward(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (a *applyStage) forward(ctx context.Context, item scatterItem) error {
	select {
	case a.out <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeRound handles the merged barrier of a round once every write of
// that round committed. An all-halt barrier past round 0 means no PE sent
// anything into this round: the PE goes inactive.
func (a *applyStage) closeRound(ctx context.Context, b Message) (bool, error) {
	if b.Round != a.round {
		log.Error().
			Uint32("pe", uint32(a.pe)).
			Uint64("round", a.round).
			Uint64("barrier", b.Round).
			Msg("apply: barrier for unexpected round")
	}

	if b.Round > 0 && b.Halt {
		a.phase = PhaseHalted
		a.stats.inactive.Store(true)
		log.Info().
			Uint32("pe", uint32(a.pe)).
			Uint64("round", b.Round).
			Uint64("cycles", a.cycle).
			Msg("apply: PE inactive")
		if a.onInactive != nil {
			a.onInactive(a.pe, b.Round)
		}
		return true, nil
	}

	if a.sweeper != nil {
		locals := a.layout.Locals(a.pe)
		for i, id := range locals {
			local := LocalID(i)
			state, outbound := a.sweeper.Sweep(a.store.Read(local), b.Round)
			a.store.Write(local, state)
			a.stats.beat()
			if outbound == nil {
				continue
			}
			item := scatterItem{
				round:   b.Round,
				vertex:  id,
				local:   local,
				payload: outbound,
			}
			if err := a.forward(ctx, item); err != nil {
				return false, err
			}
		}
	}

	if a.checkpointer != nil && a.checkpointEvery > 0 && b.Round%a.checkpointEvery == 0 {
		done := a.stats.working()
		err := a.checkpointer.Checkpoint(a.pe, b.Round, a.states())
		done()
		if err != nil {
			log.Warn().Err(err).
				Uint32("pe", uint32(a.pe)).
				Uint64("round", b.Round).
				Msg("apply: checkpoint failed")
		}
	}

	if err := a.forward(ctx, scatterItem{barrier: true, round: b.Round}); err != nil {
		return false, err
	}
	a.round = b.Round + 1
	a.stats.setRound(a.round)
	return false, nil
}

func (a *applyStage) recordKernelError(m Message, err error) {
	a.stats.addKernelError()
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.kernelErr == nil {
		a.kernelErr = &KernelError{PE: a.pe, Vertex: m.Dest, Round: m.Round, Err: err}
		log.Warn().Err(a.kernelErr).Msg("apply: kernel error")
	}
}

func (a *applyStage) states() map[VertexID]interface{} {
	return snapshotStates(a.layout.Locals(a.pe), a.store)
}

// snapshotStates keys a copy of store by global id.
func snapshotStates(locals []VertexID, store *VertexStore) map[VertexID]interface{} {
	snap := store.Snapshot()
	out := make(map[VertexID]interface{}, len(snap))
	for i, id := range locals {
		out[id] = snap[i]
	}
	return out
}
