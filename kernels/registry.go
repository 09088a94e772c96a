package kernels

import (
	"encoding/gob"
	"errors"
	"fmt"
	"strings"

	"github.com/gokcedilek/bagel/bagel"
)

// constants are used as the QueryType of a query
const (
	PAGE_RANK            = "PageRank"
	SHORTEST_PATH        = "ShortestPath"
	BFS_QUERY            = "BFS"
	CONNECTED_COMPONENTS = "ConnectedComponents"
)

var ErrBadQuery = errors.New("invalid query")

func init() {
	// checkpointed states travel as interface values
	gob.Register(BFSState{})
	gob.Register(PageRankState{})
	gob.Register(bagel.VertexID(0))
}

type Options struct {
	Damping    float64
	Iterations uint64
}

// Job is everything the engine needs to answer one query.
type Job struct {
	QueryType string
	Kernel    bagel.Kernel
	Seeds     []bagel.Seed
	Report    []bagel.VertexID // vertices whose value the query returns
	Summarize func(state interface{}) interface{}
}

// Values summarizes the reported vertices of a finished run.
func (j *Job) Values(states map[bagel.VertexID]interface{}) map[bagel.VertexID]interface{} {
	values := make(map[bagel.VertexID]interface{}, len(j.Report))
	for _, id := range j.Report {
		values[id] = j.Summarize(states[id])
	}
	return values
}

// ParseQueryType accepts the canonical names and short aliases in any case.
func ParseQueryType(s string) (string, error) {
	switch strings.ToLower(s) {
	case "pagerank", "pr":
		return PAGE_RANK, nil
	case "shortestpath", "sp", "sssp":
		return SHORTEST_PATH, nil
	case "bfs":
		return BFS_QUERY, nil
	case "connectedcomponents", "cc", "wcc":
		return CONNECTED_COMPONENTS, nil
	}
	return "", fmt.Errorf("%w: unknown query type %q", ErrBadQuery, s)
}

// ValidateNodes checks the number of vertices a query type needs.
//
//	PageRank: 1+ vertices to report
//	ShortestPath: [source, destination]
//	BFS: [source, targets...]
//	ConnectedComponents: 1+ vertices to report
func ValidateNodes(queryType string, nodes []uint64) error {
	switch queryType {
	case PAGE_RANK, CONNECTED_COMPONENTS, BFS_QUERY:
		if len(nodes) < 1 {
			return fmt.Errorf("%w: %s needs at least one vertex", ErrBadQuery, queryType)
		}
	case SHORTEST_PATH:
		if len(nodes) != 2 {
			return fmt.Errorf("%w: incorrect number of vertices in the query", ErrBadQuery)
		}
	default:
		return fmt.Errorf("%w: unknown query type %q", ErrBadQuery, queryType)
	}
	return nil
}

// Build prepares the kernel, seeds and reported vertices of a query.
func Build(queryType string, adj bagel.Adjacency, nodes []uint64, opts Options) (*Job, error) {
	queryType, err := ParseQueryType(queryType)
	if err != nil {
		return nil, err
	}
	if err := ValidateNodes(queryType, nodes); err != nil {
		return nil, err
	}

	ids := make([]bagel.VertexID, len(nodes))
	for i, n := range nodes {
		ids[i] = bagel.VertexID(n)
	}

	job := &Job{QueryType: queryType, Report: ids}
	switch queryType {
	case PAGE_RANK:
		all := adj.Vertices()
		job.Kernel = NewPageRank(len(all), opts.Damping, opts.Iterations)
		job.Seeds = seedEach(all, nil)
		job.Summarize = pageRankSummary
	case SHORTEST_PATH:
		job.Kernel = ShortestPath{}
		job.Seeds = []bagel.Seed{{Vertex: ids[0], Payload: 0.0}}
		job.Report = ids[1:]
		job.Summarize = shortestPathSummary
	case BFS_QUERY:
		job.Kernel = BFS{}
		job.Seeds = []bagel.Seed{{Vertex: ids[0]}}
		job.Summarize = bfsSummary
	case CONNECTED_COMPONENTS:
		all := adj.Vertices()
		job.Kernel = ConnectedComponents{}
		job.Seeds = make([]bagel.Seed, len(all))
		for i, id := range all {
			job.Seeds[i] = bagel.Seed{Vertex: id, Payload: id}
		}
		job.Summarize = componentSummary
	}
	return job, nil
}

func seedEach(ids []bagel.VertexID, payload interface{}) []bagel.Seed {
	seeds := make([]bagel.Seed, len(ids))
	for i, id := range ids {
		seeds[i] = bagel.Seed{Vertex: id, Payload: payload}
	}
	return seeds
}
