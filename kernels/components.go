package kernels

import (
	"fmt"
	"math"

	"github.com/gokcedilek/bagel/bagel"
)

// ConnectedComponents propagates the smallest vertex id along edges.
// Every vertex is seeded with its own id; on a symmetric graph the final
// label is the smallest id of the component.
type ConnectedComponents struct{}

func (ConnectedComponents) Init(id bagel.VertexID, degree int) interface{} {
	return bagel.VertexID(math.MaxUint64)
}

func (ConnectedComponents) Apply(state interface{}, msg bagel.Message) (interface{}, interface{}, error) {
	label, ok := state.(bagel.VertexID)
	if !ok {
		return state, nil, fmt.Errorf("components: unexpected state %T", state)
	}
	candidate, ok := msg.Payload.(bagel.VertexID)
	if !ok {
		return state, nil, fmt.Errorf("components: unexpected payload %T", msg.Payload)
	}
	if candidate < label {
		return candidate, candidate, nil
	}
	return label, nil, nil
}

func (ConnectedComponents) Scatter(payload interface{}, neighbor bagel.VertexID, edge interface{}) (bool, interface{}) {
	return true, payload
}

func componentSummary(state interface{}) interface{} {
	label, ok := state.(bagel.VertexID)
	if !ok || label == bagel.VertexID(math.MaxUint64) {
		return int64(-1)
	}
	return uint64(label)
}
