package database

import (
	"context"
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	store, err := OpenSQLStore(DRIVER_SQLITE, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleVertices(n int) []Vertex {
	vertices := make([]Vertex, n)
	for i := range vertices {
		id := uint64(i)
		vertices[i] = Vertex{ID: id, Edges: []uint64{(id + 1) % uint64(n)}, Hash: id * 31}
		if i%2 == 0 {
			vertices[i].Weights = []float64{float64(i) / 2}
		}
	}
	return vertices
}

func TestSQLStoreAddAndRead(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	vertices := sampleVertices(30)
	if err := store.AddGraph(ctx, "ring", vertices); err != nil {
		t.Fatal(err)
	}

	got, err := store.Vertices(ctx, "ring")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, vertices) {
		t.Errorf("expected %v, got %v", vertices, got)
	}

	v, err := store.GetVertexById(ctx, "ring", 4)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v, vertices[4]) {
		t.Errorf("expected %+v, got %+v", vertices[4], v)
	}
	if _, err := store.GetVertexById(ctx, "ring", 99); err == nil {
		t.Error("expected an error for an unknown id")
	}

	part, err := store.GetVerticesModulo(ctx, "ring", 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(part) != 10 {
		t.Errorf("expected 10 vertices, got %d", len(part))
	}
	for _, v := range part {
		if v.ID%3 != 1 {
			t.Errorf("vertex %d in partition 1", v.ID)
		}
	}
}

func TestSQLStoreRejectsTableNames(t *testing.T) {
	ctx := context.Background()
	store := openSQLite(t)
	for _, name := range []string{"", "web-Google", "g; DROP TABLE x", "1graph"} {
		if err := store.AddGraph(ctx, name, sampleVertices(2)); err == nil {
			t.Errorf("%q: expected an error", name)
		}
	}
	if _, err := OpenSQLStore("postgres", ""); err == nil {
		t.Error("expected an error for an unsupported driver")
	}
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{DatabaseName: "bagel", ServerAddr: "db", Port: 1433, Username: "u", Password: "p"}
	dsn, err := cfg.DSN(DRIVER_MYSQL)
	if err != nil || dsn != "u:p@tcp(db:1433)/bagel" {
		t.Errorf("unexpected mysql dsn %q, %v", dsn, err)
	}
	dsn, err = cfg.DSN(DRIVER_SQLSERVER)
	if err != nil || dsn != "server=db;user id=u;password=p;port=1433;database=bagel;" {
		t.Errorf("unexpected sqlserver dsn %q, %v", dsn, err)
	}
	if _, err := cfg.DSN("oracle"); err == nil {
		t.Error("expected an error")
	}
}

func TestDynamoItemRoundTrip(t *testing.T) {
	vertex := Vertex{ID: 12, Edges: []uint64{1, 1 << 40}, Weights: []float64{0.5, 2}, Hash: 99}
	req := marshalVertexWriteReq(vertex)
	got, err := unmarshalVertices([]map[string]types.AttributeValue{req.PutRequest.Item})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !reflect.DeepEqual(got[0], vertex) {
		t.Errorf("expected %+v, got %+v", vertex, got)
	}
}
