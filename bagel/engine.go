package bagel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	fchecker "github.com/gokcedilek/bagel/fcheck"
)

// Result is the terminal output of one run.
type Result struct {
	States      map[VertexID]interface{}
	Rounds      uint64 // index of the quiescent round that ended the run
	Cycles      uint64 // slowest PE's apply cycles
	Messages    uint64 // updates sent over the network, seeds excluded
	PEs         []PEStats
	KernelError error
}

type Option func(*Engine)

// WithPartitioner overrides Config.Partitioner, e.g. with a precomputed
// Assignment.
func WithPartitioner(p Partitioner) Option {
	return func(e *Engine) { e.partitioner = p }
}

func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) { e.checkpointer = c }
}

// WithOnInactive registers a callback run by each PE when it goes inactive.
func WithOnInactive(f func(pe PEID, round uint64)) Option {
	return func(e *Engine) { e.onInactive = f }
}

// WithOnDone registers a callback run once, when every PE is inactive.
func WithOnDone(f func()) Option {
	return func(e *Engine) { e.onDone = f }
}

type Engine struct {
	cfg    Config
	kernel Kernel
	layout *Layout
	net    Network
	pes    []*processingElement

	partitioner  Partitioner
	checkpointer Checkpointer
	onInactive   func(PEID, uint64)
	onDone       func()

	started   atomic.Bool
	ready     chan struct{}
	done      chan struct{}
	doneOnce  sync.Once
	inactive  atomic.Int32
	haltRound atomic.Uint64
	busyTicks atomic.Uint64
}

func New(cfg Config, adj Adjacency, kernel Kernel, opts ...Option) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		kernel: kernel,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.partitioner == nil {
		p, err := PartitionerByName(cfg.Partitioner)
		if err != nil {
			return nil, err
		}
		e.partitioner = p
	}

	layout, csrs, err := BuildLayout(adj, cfg.NumPEs, e.partitioner, Capacity{
		VerticesPerPE: cfg.VerticesPerPE,
		EdgesPerPE:    cfg.EdgesPerPE,
	})
	if err != nil {
		return nil, err
	}
	e.layout = layout

	e.net, err = NewNetwork(cfg.Topology, cfg.NumPEs, cfg.LaneDepth)
	if err != nil {
		return nil, err
	}

	e.pes = make([]*processingElement, cfg.NumPEs)
	for i := range e.pes {
		pe := newProcessingElement(PEID(i), cfg, kernel, layout, csrs[i], e.net)
		pe.apply.checkpointer = e.checkpointer
		pe.apply.checkpointEvery = cfg.CheckpointEvery
		pe.apply.onInactive = e.peInactive
		e.pes[i] = pe
	}

	log.Info().
		Int("pes", cfg.NumPEs).
		Int("vertices", layout.NumVertices()).
		Str("topology", cfg.Topology).
		Int("latency", cfg.PipelineLatency).
		Msg("engine: built")
	return e, nil
}

func (e *Engine) Layout() *Layout {
	return e.layout
}

// Ready is closed once every seed has been handed to the network.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Done is closed, exactly once, when every PE is inactive.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run executes the computation until global inactivity. It can be called
// once per engine.
func (e *Engine) Run(ctx context.Context, seeds ...Seed) (*Result, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	for _, s := range seeds {
		if _, err := e.layout.Home(s.Vertex); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	enginesRunning.Inc()
	defer enginesRunning.Dec()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	netDone := make(chan error, 1)
	go func() { netDone <- e.net.Serve(runCtx) }()

	g, gctx := errgroup.WithContext(runCtx)
	for _, pe := range e.pes {
		pe := pe
		g.Go(func() error { return pe.run(gctx) })
	}
	g.Go(func() error { return e.inject(gctx, seeds) })

	if e.cfg.StallProbeMillis > 0 {
		monitor, notifyCh, err := fchecker.Start(fchecker.StartStruct{
			ProbeInterval: e.cfg.stallProbeInterval(),
			LostMsgThresh: e.cfg.StallThreshold,
			Probes:        map[string]fchecker.Probe{"engine": e.progress},
		})
		if err != nil {
			cancel()
			_ = g.Wait()
			<-netDone
			return nil, err
		}
		defer monitor.Stop()
		g.Go(func() error {
			select {
			case failure := <-notifyCh:
				e.logStall()
				return fmt.Errorf(
					"%w: %s stalled at %v after %d probes", ErrDeadlock,
					failure.Target, failure.Timestamp.Format("15:04:05.000"),
					e.cfg.StallThreshold,
				)
			case <-e.done:
				return nil
			case <-gctx.Done():
				return nil
			}
		})
	}

	err := g.Wait()
	cancel()
	<-netDone

	res := e.result()
	if err != nil {
		log.Error().Err(err).Msg("engine: run failed")
		return res, err
	}
	log.Info().
		Uint64("rounds", res.Rounds).
		Uint64("messages", res.Messages).
		Uint64("cycles", res.Cycles).
		Msg("engine: done")
	return res, nil
}

// inject sends every seed through its home PE's own lane, then closes
// round 0 on behalf of every source.
func (e *Engine) inject(ctx context.Context, seeds []Seed) error {
	perPE := make([]uint64, len(e.pes))
	for _, s := range seeds {
		addr, _ := e.layout.Home(s.Vertex)
		m := NewUpdate(0, addr.PE, s.Vertex, s.Vertex, s.Payload)
		if err := e.net.Send(ctx, addr.PE, addr.PE, m); err != nil {
			return err
		}
		perPE[addr.PE]++
	}
	for dst := range e.pes {
		for src := range e.pes {
			var count uint64
			if src == dst {
				count = perPE[dst]
			}
			b := NewBarrier(0, PEID(src), count, false)
			if err := e.net.Send(ctx, PEID(src), PEID(dst), b); err != nil {
				return err
			}
		}
	}
	close(e.ready)
	log.Debug().Int("seeds", len(seeds)).Msg("engine: seeds injected")
	return nil
}

func (e *Engine) peInactive(pe PEID, round uint64) {
	e.haltRound.Store(round)
	if e.onInactive != nil {
		e.onInactive(pe, round)
	}
	if int(e.inactive.Add(1)) == len(e.pes) {
		e.doneOnce.Do(func() {
			close(e.done)
			log.Info().Uint64("round", round).Msg("engine: all PEs inactive")
			if e.onDone != nil {
				e.onDone()
			}
		})
	}
}

// progress is what the stall monitor samples. A PE inside a checkpoint write
// counts as moving on every sample.
func (e *Engine) progress() uint64 {
	var total uint64
	busy := false
	for _, pe := range e.pes {
		total += pe.stats.progress()
		if pe.stats.busy.Load() > 0 {
			busy = true
		}
	}
	if busy {
		return total + e.busyTicks.Add(1)
	}
	return total + e.busyTicks.Load()
}

func (e *Engine) logStall() {
	for _, s := range e.Stats() {
		log.Error().
			Uint32("pe", uint32(s.PE)).
			Uint64("round", s.Round).
			Uint64("outstanding", s.Outstanding).
			Uint64("applied", s.Applied).
			Bool("inactive", s.Inactive).
			Msg("engine: no progress")
	}
}

// KernelError returns the first kernel error of the lowest numbered PE
// that saw one, or nil.
func (e *Engine) KernelError() error {
	for _, pe := range e.pes {
		if kerr := pe.apply.KernelError(); kerr != nil {
			return kerr
		}
	}
	return nil
}

// MessagesSent is the number of updates sent so far.
func (e *Engine) MessagesSent() uint64 {
	var total uint64
	for _, pe := range e.pes {
		total += pe.stats.sent.Load()
	}
	return total
}

func (e *Engine) Stats() []PEStats {
	stats := make([]PEStats, len(e.pes))
	for i, pe := range e.pes {
		stats[i] = pe.Stats()
	}
	return stats
}

// result must only be called after every PE goroutine returned.
func (e *Engine) result() *Result {
	res := &Result{
		States:      make(map[VertexID]interface{}, e.layout.NumVertices()),
		Rounds:      e.haltRound.Load(),
		Messages:    e.MessagesSent(),
		PEs:         e.Stats(),
		KernelError: e.KernelError(),
	}
	for _, pe := range e.pes {
		for id, st := range snapshotStates(e.layout.Locals(pe.id), pe.store) {
			res.States[id] = st
		}
	}
	for _, s := range res.PEs {
		if s.Cycles > res.Cycles {
			res.Cycles = s.Cycles
		}
		if e.inactive.Load() != int32(len(e.pes)) && s.Round > res.Rounds {
			res.Rounds = s.Round
		}
	}
	return res
}
