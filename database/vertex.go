package database

import (
	"context"
	"math"
	"sort"

	"github.com/gokcedilek/bagel/bagel"
	"github.com/gokcedilek/bagel/util"
)

const MAXIMUM_ITEMS_PER_BATCH = 25

type Graph map[uint64][]uint64

// Vertex is the stored form of a vertex: its out-edges, optional weights
// parallel to Edges, and the hash used for partitioning.
type Vertex struct {
	ID      uint64
	Edges   []uint64
	Weights []float64 `json:",omitempty" dynamodbav:",omitempty"`
	Hash    uint64
}

// GraphSource loads a stored graph by name.
type GraphSource interface {
	Vertices(ctx context.Context, graph string) ([]Vertex, error)
}

// GraphSink stores a graph under a name.
type GraphSink interface {
	AddGraph(ctx context.Context, graph string, vertices []Vertex) error
}

type GraphStore interface {
	GraphSource
	GraphSink
}

// ToAdjacency turns stored vertices into the engine's input. Weights
// become edge payloads.
func ToAdjacency(vertices []Vertex) bagel.Adjacency {
	adj := make(bagel.Adjacency, len(vertices))
	for _, v := range vertices {
		edges := make([]bagel.Edge, len(v.Edges))
		for i, dst := range v.Edges {
			edges[i] = bagel.Edge{Dst: bagel.VertexID(dst)}
			if i < len(v.Weights) {
				edges[i].Payload = v.Weights[i]
			}
		}
		adj[bagel.VertexID(v.ID)] = edges
	}
	return adj
}

func graphToVertices(graph Graph, weights map[uint64][]float64) []Vertex {
	ids := make([]uint64, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	vertices := make([]Vertex, len(ids))
	for idx, vertexId := range ids {
		vertices[idx] = Vertex{
			ID:      vertexId,
			Edges:   graph[vertexId],
			Weights: weights[vertexId],
			Hash:    util.HashId(vertexId),
		}
	}
	return vertices
}

// CreateBatches splits vertices into groups of MAXIMUM_ITEMS_PER_BATCH.
func CreateBatches(vertices []Vertex) [][]Vertex {
	numBatches := int(math.Ceil(float64(len(vertices)) / float64(MAXIMUM_ITEMS_PER_BATCH)))
	batches := make([][]Vertex, numBatches)
	for b := 0; b < numBatches; b++ {
		end := (b + 1) * MAXIMUM_ITEMS_PER_BATCH
		if end > len(vertices) {
			end = len(vertices)
		}
		batches[b] = vertices[b*MAXIMUM_ITEMS_PER_BATCH : end]
	}
	return batches
}
