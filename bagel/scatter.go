package bagel

import (
	"context"

	"github.com/rs/zerolog/log"
)

// scatterStage turns outbound payloads into per-neighbor updates for the
// next round, and end-of-round items into one barrier per destination.
type scatterStage struct {
	pe     PEID
	kernel Kernel
	layout *Layout
	csr    *CSR
	net    Network
	in     <-chan scatterItem
	stats  *peCounters

	sent    []uint64 // per destination, current round
	emitted uint64
}

func newScatterStage(
	pe PEID, kernel Kernel, layout *Layout, csr *CSR, net Network,
	in <-chan scatterItem, stats *peCounters,
) *scatterStage {
	return &scatterStage{
		pe:     pe,
		kernel: kernel,
		layout: layout,
		csr:    csr,
		net:    net,
		in:     in,
		stats:  stats,
		sent:   make([]uint64, layout.NumPEs()),
	}
}

func (s *scatterStage) run(ctx context.Context) error {
	for {
		select {
		case item, ok := <-s.in:
			if !ok {
				return nil
			}
			var err error
			if item.barrier {
				err = s.forwardBarrier(ctx, item.round)
			} else {
				err = s.expand(ctx, item)
			}
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *scatterStage) expand(ctx context.Context, item scatterItem) error {
	fetcher := NewNeighborFetcher(s.csr, item.local)
	s.stats.scanned.Add(uint64(fetcher.Remaining()))
	for {
		n, ok := fetcher.Next()
		if !ok {
			return nil
		}
		forward, payload := s.kernel.Scatter(item.payload, n.ID, n.Payload)
		if !forward {
			continue
		}
		addr, err := s.layout.Home(n.ID)
		if err != nil {
			log.Error().Err(err).Uint32("pe", uint32(s.pe)).Msg("scatter: neighbor has no home")
			continue
		}
		msg := NewUpdate(item.round+1, s.pe, n.ID, item.vertex, payload)
		if err := s.net.Send(ctx, s.pe, addr.PE, msg); err != nil {
			return err
		}
		s.sent[addr.PE]++
		s.emitted++
		s.stats.addSent(1)
	}
}

// forwardBarrier closes round for this source: every destination learns
// how many round+1 updates to expect from it.
func (s *scatterStage) forwardBarrier(ctx context.Context, round uint64) error {
	halt := s.emitted == 0
	for dst := range s.sent {
		b := NewBarrier(round+1, s.pe, s.sent[dst], halt)
		if err := s.net.Send(ctx, s.pe, PEID(dst), b); err != nil {
			return err
		}
		s.sent[dst] = 0
	}
	log.Debug().
		Uint32("pe", uint32(s.pe)).
		Uint64("round", round+1).
		Uint64("emitted", s.emitted).
		Msg("scatter: barrier forwarded")
	s.emitted = 0
	return nil
}
