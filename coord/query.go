package coord

import (
	"fmt"
	"strconv"

	"github.com/gokcedilek/bagel/bagel"
)

// query statuses
const (
	STATUS_RUNNING = "running"
	STATUS_DONE    = "done"
	STATUS_FAILED  = "failed"
)

type Query struct {
	ClientId   string
	QueryType  string
	Nodes      []uint64
	Graph      string
	Damping    float64 `json:",omitempty"`
	Iterations uint64  `json:",omitempty"`
}

type QueryResult struct {
	ID       string
	Query    Query
	Status   string
	Result   map[string]interface{} // vertex id -> summarized value
	Rounds   uint64
	Messages uint64
	Error    string
}

// QueryID names a query in status requests.
type QueryID struct {
	ID string
}

func formatValues(values map[bagel.VertexID]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for id, v := range values {
		out[strconv.FormatUint(uint64(id), 10)] = v
	}
	return out
}

func (r QueryResult) String() string {
	if r.Error != "" {
		return fmt.Sprintf("%s %s %s: %s", r.ID, r.Query.QueryType, r.Status, r.Error)
	}
	return fmt.Sprintf("%s %s %s after %d rounds: %v", r.ID, r.Query.QueryType, r.Status, r.Rounds, r.Result)
}
