package bagel

// VertexStore holds the state of every vertex of one PE. Only the PE's
// apply stage touches it, so it carries no lock.
type VertexStore struct {
	states []interface{}
}

func NewVertexStore(size int) *VertexStore {
	return &VertexStore{states: make([]interface{}, size)}
}

func (s *VertexStore) Read(local LocalID) interface{} {
	return s.states[local]
}

func (s *VertexStore) Write(local LocalID, state interface{}) {
	s.states[local] = state
}

func (s *VertexStore) Len() int {
	return len(s.states)
}

func (s *VertexStore) Snapshot() []interface{} {
	out := make([]interface{}, len(s.states))
	copy(out, s.states)
	return out
}
