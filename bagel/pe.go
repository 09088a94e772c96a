package bagel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// processingElement owns one partition: its store, its CSR and the three
// goroutines (arbiter, apply, scatter) that work on them.
type processingElement struct {
	id      PEID
	store   *VertexStore
	csr     *CSR
	arbiter *arbiter
	apply   *applyStage
	scatter *scatterStage
	stats   *peCounters
}

func newProcessingElement(
	id PEID, cfg Config, kernel Kernel, layout *Layout, csr *CSR, net Network,
) *processingElement {
	stats := newPECounters(id)

	locals := layout.Locals(id)
	store := NewVertexStore(len(locals))
	for i, v := range locals {
		store.Write(LocalID(i), kernel.Init(v, csr.Degree(LocalID(i))))
	}

	toApply := make(chan Message, cfg.QueueDepth)
	toScatter := make(chan scatterItem, cfg.QueueDepth)

	apply := newApplyStage(id, kernel, layout, store, cfg.PipelineLatency, toApply, toScatter, stats)
	return &processingElement{
		id:      id,
		store:   store,
		csr:     csr,
		arbiter: newArbiter(id, net.Inbox(id), toApply, apply.halted, stats),
		apply:   apply,
		scatter: newScatterStage(id, kernel, layout, csr, net, toScatter, stats),
		stats:   stats,
	}
}

func (p *processingElement) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.arbiter.run(gctx) })
	g.Go(func() error { return p.apply.run(gctx) })
	g.Go(func() error { return p.scatter.run(gctx) })
	return g.Wait()
}

func (p *processingElement) Stats() PEStats {
	s := p.stats.snapshot(p.id)
	s.Vertices = p.store.Len()
	s.Edges = p.csr.NumEdges()
	return s
}
