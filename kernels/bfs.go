package kernels

import (
	"fmt"

	"github.com/gokcedilek/bagel/bagel"
)

// BFSState records when a vertex was discovered and from where.
type BFSState struct {
	Visited bool
	Depth   uint64
	Parent  bagel.VertexID
}

// BFS discovers vertices level by level, one level per round. Among the
// senders that reach a vertex in its discovery round, the smallest id
// becomes the parent.
type BFS struct{}

func (BFS) Init(id bagel.VertexID, degree int) interface{} {
	return BFSState{}
}

func (BFS) Apply(state interface{}, msg bagel.Message) (interface{}, interface{}, error) {
	s, ok := state.(BFSState)
	if !ok {
		return state, nil, fmt.Errorf("bfs: unexpected state %T", state)
	}
	if !s.Visited {
		s = BFSState{Visited: true, Depth: msg.Round, Parent: msg.Sender}
		return s, msg.Round + 1, nil
	}
	if s.Depth == msg.Round && msg.Sender < s.Parent {
		s.Parent = msg.Sender
	}
	return s, nil, nil
}

func (BFS) Scatter(payload interface{}, neighbor bagel.VertexID, edge interface{}) (bool, interface{}) {
	return true, payload
}

func bfsSummary(state interface{}) interface{} {
	s, ok := state.(BFSState)
	if !ok || !s.Visited {
		return int64(-1)
	}
	return int64(s.Depth)
}
