package bagel

import "fmt"

type roundSlot struct {
	round    uint64
	seen     []bool
	declared []uint64
	observed []uint64
	barriers int
	halt     bool
}

func newRoundSlot(round uint64, numSources int) *roundSlot {
	return &roundSlot{
		round:    round,
		seen:     make([]bool, numSources),
		declared: make([]uint64, numSources),
		observed: make([]uint64, numSources),
		halt:     true,
	}
}

func (s *roundSlot) reset(round uint64) {
	s.round = round
	for i := range s.seen {
		s.seen[i] = false
		s.declared[i] = 0
		s.observed[i] = 0
	}
	s.barriers = 0
	s.halt = true
}

// BarrierCounter tracks, for one destination PE, which sources closed the
// accepting round and how many of their declared updates arrived. It keeps
// two slots: the accepting round and the one after it.
type BarrierCounter struct {
	accepting uint64
	slots     [2]*roundSlot
}

func NewBarrierCounter(numSources int) *BarrierCounter {
	return &BarrierCounter{
		slots: [2]*roundSlot{
			newRoundSlot(0, numSources),
			newRoundSlot(1, numSources),
		},
	}
}

// Accepting is the round whose updates are admitted to apply.
func (b *BarrierCounter) Accepting() uint64 {
	return b.accepting
}

func (b *BarrierCounter) slot(round uint64) (*roundSlot, error) {
	if round != b.accepting && round != b.accepting+1 {
		return nil, fmt.Errorf(
			"%w: round %d while accepting %d", ErrRoundTagMismatch,
			round, b.accepting,
		)
	}
	return b.slots[round&1], nil
}

func (b *BarrierCounter) ObserveUpdate(src PEID, round uint64) error {
	s, err := b.slot(round)
	if err != nil {
		return err
	}
	s.observed[src]++
	if s.seen[src] && s.observed[src] > s.declared[src] {
		return fmt.Errorf(
			"source %d sent %d updates for round %d, declared %d",
			src, s.observed[src], round, s.declared[src],
		)
	}
	return nil
}

func (b *BarrierCounter) ObserveBarrier(src PEID, round uint64, count uint64, halt bool) error {
	s, err := b.slot(round)
	if err != nil {
		return err
	}
	if s.seen[src] {
		return fmt.Errorf("duplicate barrier from source %d for round %d", src, round)
	}
	s.seen[src] = true
	s.declared[src] = count
	s.barriers++
	s.halt = s.halt && halt
	if s.observed[src] > count {
		return fmt.Errorf(
			"source %d sent %d updates for round %d, declared %d",
			src, s.observed[src], round, count,
		)
	}
	return nil
}

// Ready reports whether the accepting round can be closed.
func (b *BarrierCounter) Ready() bool {
	s := b.slots[b.accepting&1]
	if s.barriers != len(s.seen) {
		return false
	}
	for i := range s.seen {
		if s.observed[i] != s.declared[i] {
			return false
		}
	}
	return true
}

// Outstanding is the number of declared updates of the accepting round not
// yet observed, counting only sources whose barrier arrived.
func (b *BarrierCounter) Outstanding() uint64 {
	s := b.slots[b.accepting&1]
	var n uint64
	for i := range s.seen {
		if s.seen[i] && s.declared[i] > s.observed[i] {
			n += s.declared[i] - s.observed[i]
		}
	}
	return n
}

// Advance closes the accepting round and returns the merged barrier. It
// must only be called when Ready.
func (b *BarrierCounter) Advance() Message {
	s := b.slots[b.accepting&1]
	var total uint64
	for _, n := range s.observed {
		total += n
	}
	merged := NewBarrier(b.accepting, 0, total, s.halt)
	s.reset(b.accepting + 2)
	b.accepting++
	return merged
}
