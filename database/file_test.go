package database

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gokcedilek/bagel/bagel"
)

const edgeList = `# FromNodeId	ToNodeId
0	1
0	2

1	2
3	0
`

func TestParseEdgeList(t *testing.T) {
	vertices, err := ParseInputGraph(strings.NewReader(edgeList), FORMAT_EDGES)
	if err != nil {
		t.Fatal(err)
	}
	expected := map[uint64][]uint64{0: {1, 2}, 1: {2}, 2: {}, 3: {0}}
	if len(vertices) != len(expected) {
		t.Fatalf("expected %d vertices, got %d", len(expected), len(vertices))
	}
	for i, v := range vertices {
		if i > 0 && vertices[i-1].ID >= v.ID {
			t.Errorf("vertices not sorted: %d after %d", v.ID, vertices[i-1].ID)
		}
		if !reflect.DeepEqual(v.Edges, expected[v.ID]) {
			t.Errorf("vertex %d: expected edges %v, got %v", v.ID, expected[v.ID], v.Edges)
		}
		if v.Weights != nil {
			t.Errorf("vertex %d: unweighted graph has weights %v", v.ID, v.Weights)
		}
	}
}

func TestParseWeightedAndAdjacency(t *testing.T) {
	vertices, err := ParseInputGraph(strings.NewReader("0 1 2.5\n0 2\n"), FORMAT_EDGES)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(vertices[0].Weights, []float64{2.5, 1}) {
		t.Errorf("unexpected weights %v", vertices[0].Weights)
	}

	vertices, err = ParseInputGraph(strings.NewReader("5 6 7\n6\n"), FORMAT_ADJ)
	if err != nil {
		t.Fatal(err)
	}
	adj := ToAdjacency(vertices)
	if len(adj) != 3 || len(adj[5]) != 2 || len(adj[6]) != 0 || len(adj[7]) != 0 {
		t.Errorf("unexpected adjacency %v", adj)
	}
	if adj[5][1].Dst != 7 || adj[5][1].Payload != nil {
		t.Errorf("unexpected edge %+v", adj[5][1])
	}
}

func TestParseErrors(t *testing.T) {
	bad := []struct{ input, format string }{
		{"0 x\n", FORMAT_EDGES},
		{"0 1 2 3\n", FORMAT_EDGES},
		{"0 1 heavy\n", FORMAT_EDGES},
		{"-1 2\n", FORMAT_ADJ},
		{"0 1\n", "csv"},
	}
	for _, c := range bad {
		if _, err := ParseInputGraph(strings.NewReader(c.input), c.format); err == nil {
			t.Errorf("%q (%s): expected an error", c.input, c.format)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := FileStore{Dir: t.TempDir(), Format: FORMAT_EDGES}
	vertices := []Vertex{
		{ID: 1, Edges: []uint64{2, 3}, Weights: []float64{0.5, 4}},
		{ID: 2, Edges: []uint64{3}, Weights: []float64{1}},
		{ID: 3, Edges: []uint64{}},
	}
	if err := store.AddGraph(ctx, "tiny", vertices); err != nil {
		t.Fatal(err)
	}
	got, err := store.Vertices(ctx, "tiny")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 vertices, got %v", got)
	}
	for i, v := range got {
		if v.ID != vertices[i].ID || !reflect.DeepEqual(v.Edges, vertices[i].Edges) {
			t.Errorf("expected %+v, got %+v", vertices[i], v)
		}
	}
	if !reflect.DeepEqual(got[0].Weights, []float64{0.5, 4}) {
		t.Errorf("weights lost: %v", got[0].Weights)
	}

	if _, err := store.Vertices(ctx, "missing"); err == nil {
		t.Error("expected an error for a missing graph")
	}
}

func TestCreateBatches(t *testing.T) {
	vertices := make([]Vertex, 2*MAXIMUM_ITEMS_PER_BATCH+1)
	batches := CreateBatches(vertices)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != MAXIMUM_ITEMS_PER_BATCH || len(batches[2]) != 1 {
		t.Errorf("unexpected batch sizes %d, %d", len(batches[0]), len(batches[2]))
	}
	if len(CreateBatches(nil)) != 0 {
		t.Error("no vertices, no batches")
	}
}

func TestToAdjacencyCarriesWeights(t *testing.T) {
	adj := ToAdjacency([]Vertex{{ID: 4, Edges: []uint64{5}, Weights: []float64{3}}, {ID: 5}})
	if adj[4][0] != (bagel.Edge{Dst: 5, Payload: 3.0}) {
		t.Errorf("unexpected edge %+v", adj[4][0])
	}
}

type fakeHashWriter struct {
	key    string
	fields map[string]string
	ttl    time.Duration
	err    error
}

func (f *fakeHashWriter) HSet(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	f.key, f.fields, f.ttl = key, fields, ttl
	return f.err
}

func TestResultSinkPublish(t *testing.T) {
	w := &fakeHashWriter{}
	sink := NewResultSink(w, time.Hour)
	err := sink.Publish(context.Background(), "q3", map[uint64]interface{}{
		1: 0.25,
		7: int64(-1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if w.key != "bagel:result:q3" || w.ttl != time.Hour {
		t.Errorf("unexpected key %q ttl %v", w.key, w.ttl)
	}
	if w.fields["1"] != "0.25" || w.fields["7"] != "-1" {
		t.Errorf("unexpected fields %v", w.fields)
	}

	w.err = errors.New("connection refused")
	if err := sink.Publish(context.Background(), "q4", map[uint64]interface{}{1: 1}); err == nil {
		t.Error("expected the writer error")
	}
}

func TestResultSinkSkipsEmpty(t *testing.T) {
	w := &fakeHashWriter{}
	if err := NewResultSink(w, 0).Publish(context.Background(), "q1", nil); err != nil {
		t.Fatal(err)
	}
	if w.key != "" {
		t.Error("nothing should be written for an empty result")
	}
}
