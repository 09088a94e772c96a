package bagel

// Neighbor is one CSR entry.
type Neighbor struct {
	ID      VertexID
	Payload interface{}
}

// NeighborFetcher walks one vertex's CSR range. The consumer pulls entries
// with Next, so a slow consumer simply stops asking.
type NeighborFetcher struct {
	csr *CSR
	pos int
	end int
}

func NewNeighborFetcher(csr *CSR, local LocalID) *NeighborFetcher {
	return &NeighborFetcher{
		csr: csr,
		pos: csr.Offsets[local],
		end: csr.Offsets[local+1],
	}
}

func (f *NeighborFetcher) Next() (Neighbor, bool) {
	if f.pos >= f.end {
		return Neighbor{}, false
	}
	n := Neighbor{ID: f.csr.Neighbors[f.pos]}
	if f.csr.Payloads != nil {
		n.Payload = f.csr.Payloads[f.pos]
	}
	f.pos++
	return n, true
}

func (f *NeighborFetcher) Remaining() int {
	return f.end - f.pos
}
