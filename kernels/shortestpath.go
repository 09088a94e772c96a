package kernels

import (
	"fmt"
	"math"

	"github.com/gokcedilek/bagel/bagel"
)

// ShortestPath relaxes distances from the seeded source. Edge payloads are
// weights; an edge without one weighs 1.
type ShortestPath struct{}

func (ShortestPath) Init(id bagel.VertexID, degree int) interface{} {
	return math.Inf(1)
}

func (ShortestPath) Apply(state interface{}, msg bagel.Message) (interface{}, interface{}, error) {
	current, ok := state.(float64)
	if !ok {
		return state, nil, fmt.Errorf("shortest path: unexpected state %T", state)
	}
	candidate, ok := toFloat(msg.Payload)
	if !ok {
		return state, nil, fmt.Errorf("shortest path: unexpected payload %T", msg.Payload)
	}
	if candidate < current {
		return candidate, candidate, nil
	}
	return current, nil, nil
}

func (ShortestPath) Scatter(payload interface{}, neighbor bagel.VertexID, edge interface{}) (bool, interface{}) {
	distance, _ := toFloat(payload)
	weight := 1.0
	if w, ok := toFloat(edge); ok {
		weight = w
	}
	return true, distance + weight
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func shortestPathSummary(state interface{}) interface{} {
	d, ok := state.(float64)
	if !ok || math.IsInf(d, 1) {
		return float64(-1)
	}
	return d
}
