package bagel

import (
	"context"

	"github.com/rs/zerolog/log"
)

// roundRobin is a rotating-pointer scheduler. After a grant the pointer
// moves past the granted index, so a source that stays ready is served at
// least once every n grants.
type roundRobin struct {
	n    int
	next int
}

func newRoundRobin(n int) *roundRobin {
	return &roundRobin{n: n}
}

// pick offers every index once, starting at the pointer, until try grants.
func (r *roundRobin) pick(try func(int) bool) (int, bool) {
	for i := 0; i < r.n; i++ {
		idx := (r.next + i) % r.n
		if try(idx) {
			r.next = (idx + 1) % r.n
			return idx, true
		}
	}
	return -1, false
}

type heldMessage struct {
	src PEID
	msg Message
}

// arbiter merges every source lane of one destination PE into its apply
// queue. Only messages of the accepting round go to apply; the next round
// waits in its own slot until the BarrierCounter closes the current one.
type arbiter struct {
	pe      PEID
	inbox   *Inbox
	counter *BarrierCounter
	rr      *roundRobin
	out     chan<- Message
	stop    <-chan struct{}
	stats   *peCounters

	cur  []Message // accepting round, in apply order
	next []Message // accepting+1
	held []heldMessage
}

func newArbiter(pe PEID, inbox *Inbox, out chan<- Message, stop <-chan struct{}, stats *peCounters) *arbiter {
	return &arbiter{
		pe:      pe,
		inbox:   inbox,
		counter: NewBarrierCounter(inbox.NumLanes()),
		rr:      newRoundRobin(inbox.NumLanes()),
		out:     out,
		stop:    stop,
		stats:   stats,
	}
}

func (a *arbiter) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		progressed := false
		if _, ok := a.rr.pick(a.tryLane); ok {
			progressed = true
		}
		if a.advance() {
			progressed = true
		}
		if len(a.cur) > 0 {
			select {
			case a.out <- a.cur[0]:
				a.cur = a.cur[1:]
				progressed = true
			default:
			}
		}
		if progressed {
			a.stats.outstanding.Store(a.counter.Outstanding())
			continue
		}

		var out chan<- Message
		var head Message
		if len(a.cur) > 0 {
			out = a.out
			head = a.cur[0]
		}
		select {
		case out <- head:
			a.cur = a.cur[1:]
		case <-a.inbox.bell:
		case <-a.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *arbiter) tryLane(i int) bool {
	select {
	case m := <-a.inbox.lanes[i]:
		a.stats.granted.Add(1)
		a.admit(PEID(i), m)
		return true
	default:
		return false
	}
}

func (a *arbiter) admit(src PEID, m Message) {
	accepting := a.counter.Accepting()
	switch {
	case m.Round < accepting:
		a.stats.addStale()
		log.Error().
			Uint32("pe", uint32(a.pe)).
			Uint32("src", uint32(src)).
			Uint64("accepting", accepting).
			Str("msg", m.String()).
			Msg("arbiter: dropping message for a closed round")
		return
	case m.Round > accepting+1:
		log.Warn().
			Uint32("pe", uint32(a.pe)).
			Uint32("src", uint32(src)).
			Uint64("accepting", accepting).
			Err(ErrRoundTagMismatch).
			Msgf("arbiter: holding round %d message", m.Round)
		a.held = append(a.held, heldMessage{src: src, msg: m})
		return
	}

	var err error
	if m.IsBarrier() {
		err = a.counter.ObserveBarrier(src, m.Round, m.Count, m.Halt)
	} else {
		err = a.counter.ObserveUpdate(src, m.Round)
		if m.Round == accepting {
			a.cur = append(a.cur, m)
		} else {
			a.next = append(a.next, m)
		}
	}
	if err != nil {
		log.Error().Err(err).Uint32("pe", uint32(a.pe)).Msg("arbiter: barrier accounting")
	}
}

// advance closes every round the counter reports ready. The merged
// barrier is queued behind the closing round's updates and ahead of the
// next round's.
func (a *arbiter) advance() bool {
	advanced := false
	for a.counter.Ready() {
		merged := a.counter.Advance()
		merged.SourcePE = a.pe
		a.cur = append(a.cur, merged)
		a.cur = append(a.cur, a.next...)
		a.next = a.next[:0]
		a.stats.barriers.Add(1)
		advanced = true

		log.Debug().
			Uint32("pe", uint32(a.pe)).
			Uint64("round", merged.Round).
			Uint64("updates", merged.Count).
			Bool("halt", merged.Halt).
			Msg("arbiter: round closed")

		if len(a.held) > 0 {
			held := a.held
			a.held = nil
			for _, h := range held {
				a.admit(h.src, h.msg)
			}
		}
	}
	return advanced
}
