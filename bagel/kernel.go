package bagel

// Kernel is the algorithm plugged into every PE. State and payload values
// are opaque to the engine.
type Kernel interface {
	// Init returns the initial state of a vertex with the given out-degree.
	Init(id VertexID, degree int) interface{}

	// Apply folds one update into the vertex state. A nil outbound means
	// there is nothing to scatter.
	Apply(state interface{}, msg Message) (newState interface{}, outbound interface{}, err error)

	// Scatter decides whether an outbound payload reaches neighbor and
	// what it carries there.
	Scatter(payload interface{}, neighbor VertexID, edge interface{}) (forward bool, out interface{})
}

// Sweeper is implemented by kernels that need a hook once every update of
// a round has been applied (PageRank folds its accumulator there). It runs
// for every local vertex, in local id order.
type Sweeper interface {
	Sweep(state interface{}, round uint64) (newState interface{}, outbound interface{})
}

// StateComparer lets a kernel define equality for its state, e.g. with a
// floating point tolerance. Used when comparing against the reference run.
type StateComparer interface {
	EqualState(a, b interface{}) bool
}
