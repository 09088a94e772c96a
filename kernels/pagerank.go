package kernels

import (
	"fmt"
	"math"

	"github.com/gokcedilek/bagel/bagel"
)

const (
	DEFAULT_DAMPING          = 0.85
	DEFAULT_ITERATIONS       = 20
	float64EqualityThreshold = 1e-9
)

type PageRankState struct {
	Rank   float64
	Acc    float64 // contributions received this round
	Degree int
}

// PageRank runs Iterations power-iteration steps. Round 0 sends the
// initial rank; each later round accumulates contributions in Apply and
// folds them into the rank in Sweep. Rank of dangling vertices is not
// redistributed.
type PageRank struct {
	N          int
	Damping    float64
	Iterations uint64
	Tolerance  float64
}

func NewPageRank(n int, damping float64, iterations uint64) *PageRank {
	if damping <= 0 || damping >= 1 {
		damping = DEFAULT_DAMPING
	}
	if iterations == 0 {
		iterations = DEFAULT_ITERATIONS
	}
	if n < 1 {
		n = 1
	}
	return &PageRank{
		N:          n,
		Damping:    damping,
		Iterations: iterations,
		Tolerance:  float64EqualityThreshold,
	}
}

func (p *PageRank) Init(id bagel.VertexID, degree int) interface{} {
	return PageRankState{Rank: 1 / float64(p.N), Degree: degree}
}

func (p *PageRank) Apply(state interface{}, msg bagel.Message) (interface{}, interface{}, error) {
	s, ok := state.(PageRankState)
	if !ok {
		return state, nil, fmt.Errorf("pagerank: unexpected state %T", state)
	}
	if msg.Round == 0 {
		return s, p.share(s), nil
	}
	contribution, ok := msg.Payload.(float64)
	if !ok {
		return state, nil, fmt.Errorf("pagerank: unexpected payload %T", msg.Payload)
	}
	s.Acc += contribution
	return s, nil, nil
}

func (p *PageRank) Scatter(payload interface{}, neighbor bagel.VertexID, edge interface{}) (bool, interface{}) {
	return true, payload
}

func (p *PageRank) Sweep(state interface{}, round uint64) (interface{}, interface{}) {
	s, ok := state.(PageRankState)
	if !ok || round == 0 {
		return state, nil
	}
	s.Rank = (1-p.Damping)/float64(p.N) + p.Damping*s.Acc
	s.Acc = 0
	if round >= p.Iterations {
		return s, nil
	}
	return s, p.share(s)
}

func (p *PageRank) share(s PageRankState) interface{} {
	if s.Degree == 0 {
		return nil
	}
	return s.Rank / float64(s.Degree)
}

func (p *PageRank) EqualState(a, b interface{}) bool {
	sa, ok := a.(PageRankState)
	if !ok {
		return false
	}
	sb, ok := b.(PageRankState)
	if !ok {
		return false
	}
	return sa.Degree == sb.Degree && math.Abs(sa.Rank-sb.Rank) <= p.Tolerance
}

func pageRankSummary(state interface{}) interface{} {
	s, ok := state.(PageRankState)
	if !ok {
		return float64(0)
	}
	return s.Rank
}
