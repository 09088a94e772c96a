package bagel

import (
	"fmt"
	"reflect"
)

// RunReference runs kernel serially, without partitions or a pipeline, one
// round at a time until a round receives no update. It is the oracle the
// engine is tested against.
func RunReference(adj Adjacency, kernel Kernel, seeds []Seed) (map[VertexID]interface{}, uint64, error) {
	ids := adj.Vertices()
	states := make(map[VertexID]interface{}, len(ids))
	for _, id := range ids {
		states[id] = kernel.Init(id, len(adj[id]))
	}
	sweeper, _ := kernel.(Sweeper)

	var firstErr error
	msgs := make([]Message, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := states[s.Vertex]; !ok {
			return nil, 0, fmt.Errorf("seed: %w: %d", ErrUnknownVertex, s.Vertex)
		}
		msgs = append(msgs, NewUpdate(0, 0, s.Vertex, s.Vertex, s.Payload))
	}

	for round := uint64(0); ; round++ {
		if round > 0 && len(msgs) == 0 {
			return states, round, firstErr
		}

		var next []Message
		expand := func(from VertexID, payload interface{}) {
			for _, e := range adj[from] {
				forward, out := kernel.Scatter(payload, e.Dst, e.Payload)
				if forward {
					next = append(next, NewUpdate(round+1, 0, e.Dst, from, out))
				}
			}
		}

		for _, m := range msgs {
			newState, outbound, err := kernel.Apply(states[m.Dest], m)
			if err != nil {
				if firstErr == nil {
					firstErr = &KernelError{Vertex: m.Dest, Round: round, Err: err}
				}
				continue
			}
			states[m.Dest] = newState
			if outbound != nil {
				expand(m.Dest, outbound)
			}
		}

		if sweeper != nil {
			for _, id := range ids {
				newState, outbound := sweeper.Sweep(states[id], round)
				states[id] = newState
				if outbound != nil {
					expand(id, outbound)
				}
			}
		}
		msgs = next
	}
}

// CompareResults returns an error describing the first vertex whose state
// differs between want and got.
func CompareResults(kernel Kernel, want, got map[VertexID]interface{}) error {
	cmp, _ := kernel.(StateComparer)
	if len(want) != len(got) {
		return fmt.Errorf("vertex count differs: want %d, got %d", len(want), len(got))
	}
	for id, w := range want {
		g, ok := got[id]
		if !ok {
			return fmt.Errorf("vertex %d missing", id)
		}
		equal := false
		if cmp != nil {
			equal = cmp.EqualState(w, g)
		} else {
			equal = reflect.DeepEqual(w, g)
		}
		if !equal {
			return fmt.Errorf("vertex %d: want %v, got %v", id, w, g)
		}
	}
	return nil
}
