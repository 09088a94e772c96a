package bagel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gokcedilek/bagel/util"
)

const (
	MODULO_PARTITION = "modulo"
	HASH_PARTITION   = "hash"
	BLOCK_PARTITION  = "block"
)

// Edge is one outgoing edge. Payload is optional (e.g. a weight).
type Edge struct {
	Dst     VertexID
	Payload interface{}
}

// Adjacency maps a vertex to its ordered out-edges.
type Adjacency map[VertexID][]Edge

// Vertices returns every vertex of the graph, including vertices that only
// appear as edge destinations, in ascending order.
func (a Adjacency) Vertices() []VertexID {
	seen := make(map[VertexID]struct{}, len(a))
	for src, edges := range a {
		seen[src] = struct{}{}
		for _, e := range edges {
			seen[e.Dst] = struct{}{}
		}
	}
	ids := make([]VertexID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Partitioner assigns a home PE to every vertex. ids is sorted ascending.
type Partitioner interface {
	Partition(ids []VertexID, numPEs int) ([]PEID, error)
}

type ModuloPartitioner struct{}

func (ModuloPartitioner) Partition(ids []VertexID, numPEs int) ([]PEID, error) {
	homes := make([]PEID, len(ids))
	for i, id := range ids {
		homes[i] = PEID(uint64(id) % uint64(numPEs))
	}
	return homes, nil
}

// HashPartitioner uses the same vertex hash the graph stores persist.
type HashPartitioner struct{}

func (HashPartitioner) Partition(ids []VertexID, numPEs int) ([]PEID, error) {
	homes := make([]PEID, len(ids))
	for i, id := range ids {
		homes[i] = PEID(util.HashId(uint64(id)) % uint64(numPEs))
	}
	return homes, nil
}

// BlockPartitioner gives each PE a contiguous run of ids.
type BlockPartitioner struct{}

func (BlockPartitioner) Partition(ids []VertexID, numPEs int) ([]PEID, error) {
	homes := make([]PEID, len(ids))
	per := (len(ids) + numPEs - 1) / numPEs
	if per == 0 {
		per = 1
	}
	for i := range ids {
		homes[i] = PEID(i / per)
	}
	return homes, nil
}

// Assignment is a precomputed partition.
type Assignment map[VertexID]PEID

func (a Assignment) Partition(ids []VertexID, numPEs int) ([]PEID, error) {
	homes := make([]PEID, len(ids))
	for i, id := range ids {
		pe, ok := a[id]
		if !ok {
			return nil, fmt.Errorf("%w: vertex %d has no assigned PE", ErrUnknownVertex, id)
		}
		if int(pe) >= numPEs {
			return nil, fmt.Errorf(
				"%w: vertex %d assigned to PE %d, only %d PEs",
				ErrBadConfig, id, pe, numPEs,
			)
		}
		homes[i] = pe
	}
	return homes, nil
}

func PartitionerByName(name string) (Partitioner, error) {
	switch strings.ToLower(name) {
	case "", MODULO_PARTITION:
		return ModuloPartitioner{}, nil
	case HASH_PARTITION:
		return HashPartitioner{}, nil
	case BLOCK_PARTITION:
		return BlockPartitioner{}, nil
	}
	return nil, fmt.Errorf("%w: unknown partitioner %q", ErrBadConfig, name)
}

// Address is the home of a vertex.
type Address struct {
	PE    PEID
	Local LocalID
}

// Capacity is the provisioned size of each PE. Zero means unlimited.
type Capacity struct {
	VerticesPerPE int
	EdgesPerPE    int
}

// Layout maps global ids to homes and back. Read-only after BuildLayout.
type Layout struct {
	homes   map[VertexID]Address
	globals [][]VertexID
}

func (l *Layout) NumPEs() int {
	return len(l.globals)
}

func (l *Layout) NumVertices() int {
	return len(l.homes)
}

func (l *Layout) Home(id VertexID) (Address, error) {
	addr, ok := l.homes[id]
	if !ok {
		return Address{}, fmt.Errorf("%w: %d", ErrUnknownVertex, id)
	}
	return addr, nil
}

func (l *Layout) Global(pe PEID, local LocalID) (VertexID, error) {
	if int(pe) >= len(l.globals) || int(local) >= len(l.globals[pe]) {
		return 0, fmt.Errorf("%w: PE %d local %d", ErrUnknownVertex, pe, local)
	}
	return l.globals[pe][local], nil
}

// Locals returns the global ids owned by pe, indexed by local id.
func (l *Layout) Locals(pe PEID) []VertexID {
	return l.globals[pe]
}

// CSR is the compact neighbor table of one PE. Neighbors of local id i are
// Neighbors[Offsets[i]:Offsets[i+1]].
type CSR struct {
	Offsets   []int
	Neighbors []VertexID
	Payloads  []interface{} // nil when no edge carries a payload
}

func (c *CSR) Degree(local LocalID) int {
	return c.Offsets[local+1] - c.Offsets[local]
}

func (c *CSR) NumEdges() int {
	return len(c.Neighbors)
}

// BuildLayout partitions adj over numPEs and builds one CSR per PE.
func BuildLayout(
	adj Adjacency, numPEs int, part Partitioner, capacity Capacity,
) (*Layout, []*CSR, error) {
	if numPEs <= 0 {
		return nil, nil, fmt.Errorf("%w: need at least one PE", ErrBadConfig)
	}
	if part == nil {
		part = ModuloPartitioner{}
	}

	ids := adj.Vertices()
	homes, err := part.Partition(ids, numPEs)
	if err != nil {
		return nil, nil, err
	}

	layout := &Layout{
		homes:   make(map[VertexID]Address, len(ids)),
		globals: make([][]VertexID, numPEs),
	}
	edgeCounts := make([]int, numPEs)
	for i, id := range ids {
		pe := homes[i]
		if int(pe) >= numPEs {
			return nil, nil, fmt.Errorf(
				"%w: vertex %d partitioned to PE %d", ErrBadConfig, id, pe,
			)
		}
		layout.homes[id] = Address{PE: pe, Local: LocalID(len(layout.globals[pe]))}
		layout.globals[pe] = append(layout.globals[pe], id)
		edgeCounts[pe] += len(adj[id])
	}

	for pe := 0; pe < numPEs; pe++ {
		if capacity.VerticesPerPE > 0 && len(layout.globals[pe]) > capacity.VerticesPerPE {
			return nil, nil, &CapacityError{
				PE:       PEID(pe),
				Resource: "vertices",
				Count:    len(layout.globals[pe]),
				Limit:    capacity.VerticesPerPE,
			}
		}
		if capacity.EdgesPerPE > 0 && edgeCounts[pe] > capacity.EdgesPerPE {
			return nil, nil, &CapacityError{
				PE:       PEID(pe),
				Resource: "edges",
				Count:    edgeCounts[pe],
				Limit:    capacity.EdgesPerPE,
			}
		}
	}

	csrs := make([]*CSR, numPEs)
	for pe := 0; pe < numPEs; pe++ {
		csrs[pe] = buildCSR(adj, layout.globals[pe], edgeCounts[pe])
	}
	return layout, csrs, nil
}

func buildCSR(adj Adjacency, locals []VertexID, numEdges int) *CSR {
	csr := &CSR{
		Offsets:   make([]int, len(locals)+1),
		Neighbors: make([]VertexID, 0, numEdges),
	}
	hasPayload := false
	for _, id := range locals {
		for _, e := range adj[id] {
			if e.Payload != nil {
				hasPayload = true
			}
		}
	}
	if hasPayload {
		csr.Payloads = make([]interface{}, 0, numEdges)
	}

	for i, id := range locals {
		for _, e := range adj[id] {
			csr.Neighbors = append(csr.Neighbors, e.Dst)
			if hasPayload {
				csr.Payloads = append(csr.Payloads, e.Payload)
			}
		}
		csr.Offsets[i+1] = len(csr.Neighbors)
	}
	return csr
}
