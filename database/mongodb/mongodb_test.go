package mongodb

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/gokcedilek/bagel/database"
)

func TestDocumentRoundTrip(t *testing.T) {
	vertices := []database.Vertex{
		{ID: 3, Edges: []uint64{1, 2}, Weights: []float64{0.5, 7}, Hash: 12345},
		{ID: 4, Edges: []uint64{}, Hash: 1},
	}
	for _, vertex := range vertices {
		raw, err := bson.Marshal(toDocument(vertex))
		if err != nil {
			t.Fatal(err)
		}
		var dbVertex DBVertex
		if err := bson.Unmarshal(raw, &dbVertex); err != nil {
			t.Fatal(err)
		}
		got, err := parseDBVertex(dbVertex)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, vertex) {
			t.Errorf("expected %+v, got %+v", vertex, got)
		}
	}
}

func TestParseDBVertexErrors(t *testing.T) {
	bad := []DBVertex{
		{ID: "x", Hash: "1"},
		{ID: "1", Edges: []string{"2", "b"}, Hash: "1"},
		{ID: "1", Weights: []string{"heavy"}, Hash: "1"},
		{ID: "1", Hash: ""},
	}
	for _, v := range bad {
		if _, err := parseDBVertex(v); err == nil {
			t.Errorf("%+v: expected an error", v)
		}
	}
}

func TestCreateBatches(t *testing.T) {
	vertices := make([]database.Vertex, database.MAXIMUM_ITEMS_PER_BATCH+3)
	batches := createBatches(vertices)
	if len(batches) != 2 || len(batches[1]) != 3 {
		t.Fatalf("unexpected batches %d", len(batches))
	}
	if _, ok := batches[0][0].(bson.D); !ok {
		t.Errorf("expected bson documents, got %T", batches[0][0])
	}
	if getPartitionName(4) != "P4" {
		t.Errorf("unexpected partition name %s", getPartitionName(4))
	}
}
