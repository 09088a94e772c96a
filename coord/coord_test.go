package coord

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/gokcedilek/bagel/bagel"
	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/kernels"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// chain: 0 -> 1 -> 2 -> 3, plus 4 -> 0
const chainGraph = "0 1\n1 2\n2 3\n4 0\n"

func testConfig(dir string) CoordConfig {
	cfg := DefaultConfig()
	cfg.GraphDir = dir
	cfg.CheckpointDB = ""
	cfg.Engine.NumPEs = 2
	return cfg
}

func newTestCoord(t *testing.T, opts ...Option) *Coord {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chain.txt"), []byte(chainGraph), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(dir)
	c := NewCoord(cfg, database.FileStore{Dir: dir, Format: cfg.GraphFormat}, opts...)
	t.Cleanup(c.Stop)
	return c
}

func waitFor(t *testing.T, c *Coord, id string) QueryResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := c.Wait(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestSubmitBFS(t *testing.T) {
	c := newTestCoord(t)
	id, err := c.Submit(context.Background(), Query{ClientId: "t", QueryType: "bfs", Nodes: []uint64{0, 3, 4}, Graph: "chain"})
	if err != nil {
		t.Fatal(err)
	}
	res := waitFor(t, c, id)
	if res.Status != STATUS_DONE || res.Error != "" {
		t.Fatalf("unexpected result %v", res)
	}
	if res.Query.QueryType != kernels.BFS_QUERY {
		t.Errorf("query type not normalized: %s", res.Query.QueryType)
	}
	if res.Result["3"] != int64(3) || res.Result["4"] != int64(-1) {
		t.Errorf("unexpected depths %v", res.Result)
	}
	if res.Rounds != 4 || res.Messages != 3 {
		t.Errorf("expected 4 rounds and 3 messages, got %d and %d", res.Rounds, res.Messages)
	}
}

func TestSubmitRejects(t *testing.T) {
	c := newTestCoord(t)
	ctx := context.Background()

	_, err := c.Submit(ctx, Query{QueryType: "triangles", Nodes: []uint64{0}, Graph: "chain"})
	if !errors.Is(err, kernels.ErrBadQuery) {
		t.Errorf("expected ErrBadQuery, got %v", err)
	}
	_, err = c.Submit(ctx, Query{QueryType: "sp", Nodes: []uint64{0}, Graph: "chain"})
	if !errors.Is(err, kernels.ErrBadQuery) {
		t.Errorf("expected ErrBadQuery, got %v", err)
	}
	_, err = c.Submit(ctx, Query{QueryType: "sp", Nodes: []uint64{0, 9}, Graph: "chain"})
	if !errors.Is(err, bagel.ErrUnknownVertex) {
		t.Errorf("expected ErrUnknownVertex, got %v", err)
	}
	if _, err = c.Submit(ctx, Query{QueryType: "cc", Nodes: []uint64{0}, Graph: "nope"}); err == nil {
		t.Error("expected an error for a missing graph")
	}
	if _, err := c.Status("q42"); !errors.Is(err, ErrUnknownQuery) {
		t.Errorf("expected ErrUnknownQuery, got %v", err)
	}

	res, err := c.StartQuery(ctx, Query{QueryType: "pr", Graph: "chain"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != STATUS_FAILED || res.Error == "" {
		t.Errorf("a rejected query is reported in the result, got %v", res)
	}
	if len(c.Queries()) != 0 {
		t.Errorf("rejected queries are not recorded")
	}
}

func TestQueriesInSubmissionOrder(t *testing.T) {
	c := newTestCoord(t)
	ctx := context.Background()
	for _, q := range []Query{
		{QueryType: "cc", Nodes: []uint64{3}, Graph: "chain"},
		{QueryType: "sp", Nodes: []uint64{4, 3}, Graph: "chain"},
		{QueryType: "pagerank", Nodes: []uint64{3}, Graph: "chain", Iterations: 4},
	} {
		res, err := c.StartQuery(ctx, q)
		if err != nil || res.Status != STATUS_DONE {
			t.Fatalf("%v: %v", res, err)
		}
	}
	queries := c.Queries()
	if len(queries) != 3 {
		t.Fatalf("expected 3 queries, got %d", len(queries))
	}
	for i, expected := range []string{"q1", "q2", "q3"} {
		if queries[i].ID != expected {
			t.Errorf("position %d: expected %s, got %s", i, expected, queries[i].ID)
		}
	}
	if queries[0].Result["3"] != uint64(0) {
		t.Errorf("3 is labelled by 0, got %v", queries[0].Result["3"])
	}
	if queries[1].Result["3"] != 4.0 {
		t.Errorf("4 is 4 hops from 3, got %v", queries[1].Result["3"])
	}
}

func TestCheckpoints(t *testing.T) {
	store, err := bagel.OpenCheckpointStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	c := newTestCoord(t, WithCheckpointStore(store))
	c.cfg.Engine.CheckpointEvery = 1

	res, err := c.StartQuery(context.Background(), Query{QueryType: "bfs", Nodes: []uint64{0}, Graph: "chain"})
	if err != nil || res.Status != STATUS_DONE {
		t.Fatalf("%v: %v", res, err)
	}
	rounds, err := c.CheckpointRounds(res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) == 0 || rounds[0] != 0 {
		t.Fatalf("unexpected rounds %v", rounds)
	}
	values, err := c.Checkpoint(res.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 5 || values["0"] != int64(0) || values["1"] != int64(-1) {
		t.Errorf("unexpected round 0 values %v", values)
	}
	if _, err := c.CheckpointRounds("q9"); !errors.Is(err, ErrUnknownQuery) {
		t.Errorf("expected ErrUnknownQuery, got %v", err)
	}
}

func TestCheckpointsStartFreshAfterRestart(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chain.txt"), []byte(chainGraph), 0644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "checkpoints.db")

	// each call is a fresh coordinator process over the same checkpoint file
	runBFS := func(source uint64) (string, []uint64, map[string]interface{}) {
		store, err := bagel.OpenCheckpointStore(dbPath)
		if err != nil {
			t.Fatal(err)
		}
		cfg := testConfig(dir)
		cfg.Engine.CheckpointEvery = 1
		c := NewCoord(cfg, database.FileStore{Dir: dir, Format: cfg.GraphFormat}, WithCheckpointStore(store))
		defer c.Stop()

		res, err := c.StartQuery(context.Background(), Query{QueryType: "bfs", Nodes: []uint64{source}, Graph: "chain"})
		if err != nil || res.Status != STATUS_DONE {
			t.Fatalf("%v: %v", res, err)
		}
		rounds, err := c.CheckpointRounds(res.ID)
		if err != nil {
			t.Fatal(err)
		}
		values, err := c.Checkpoint(res.ID, 0)
		if err != nil {
			t.Fatal(err)
		}
		return res.ID, rounds, values
	}

	// 4 -> 0 -> 1 -> 2 -> 3 checkpoints rounds 0 to 4
	id, rounds, _ := runBFS(4)
	if id != "q1" || len(rounds) != 5 {
		t.Fatalf("first run: %s rounds %v", id, rounds)
	}

	// 3 has no out-edges: only round 0 runs
	id, rounds, values := runBFS(3)
	if id != "q1" {
		t.Fatalf("expected the id to restart at q1, got %s", id)
	}
	if len(rounds) != 1 || rounds[0] != 0 {
		t.Errorf("rounds of the previous q1 leaked: %v", rounds)
	}
	if values["3"] != int64(0) || values["4"] != int64(-1) {
		t.Errorf("round 0 mixes both runs: %v", values)
	}
}

func TestHTTPAPI(t *testing.T) {
	c := newTestCoord(t)
	router := c.Router()

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := serve(http.MethodPost, "/api/query", `{"QueryType":"sp","Nodes":[0,3],"Graph":"chain"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /api/query: %d %s", w.Code, w.Body)
	}
	var accepted struct{ ID, Status string }
	if err := json.Unmarshal(w.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}
	if accepted.ID != "q1" || accepted.Status != STATUS_RUNNING {
		t.Errorf("unexpected reply %+v", accepted)
	}

	w = serve(http.MethodGet, "/api/query/q1?wait=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/query/q1: %d %s", w.Code, w.Body)
	}
	var res QueryResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != STATUS_DONE || res.Result["3"] != 3.0 {
		t.Errorf("unexpected result %v", res)
	}

	if w = serve(http.MethodGet, "/api/queries", ""); w.Code != http.StatusOK {
		t.Errorf("GET /api/queries: %d", w.Code)
	}
	var list []QueryResult
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("unexpected list %s: %v", w.Body, err)
	}

	cases := []struct {
		method, path, body string
		code               int
	}{
		{http.MethodPost, "/api/query", `{"QueryType":"bfs"`, http.StatusBadRequest},
		{http.MethodPost, "/api/query", `{"QueryType":"bfs","Nodes":[7],"Graph":"chain"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/query/q7", "", http.StatusNotFound},
		{http.MethodGet, "/api/checkpoints/q1", "", http.StatusNotImplemented},
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
	}
	for _, tc := range cases {
		if w := serve(tc.method, tc.path, tc.body); w.Code != tc.code {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.code, w.Code)
		}
	}
}

func TestGRPCClient(t *testing.T) {
	c := newTestCoord(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))
	RegisterCoordServer(server, c)
	go server.Serve(lis)
	defer server.Stop()

	client := NewClient()
	notifyCh, err := client.Start("client1", lis.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	if err := client.SendQuery(Query{QueryType: "sp", Nodes: []uint64{0}, Graph: "chain"}); !errors.Is(err, kernels.ErrBadQuery) {
		t.Errorf("expected the client to reject the query, got %v", err)
	}
	if err := client.SendQuery(Query{QueryType: "bfs", Nodes: []uint64{1 << 60}, Graph: "chain"}); err == nil {
		t.Error("expected an error for an id above 2^53")
	}

	if err := client.SendQuery(Query{QueryType: "ShortestPath", Nodes: []uint64{0, 2}, Graph: "chain"}); err != nil {
		t.Fatal(err)
	}
	var res QueryResult
	select {
	case res = <-notifyCh:
	case <-time.After(10 * time.Second):
		t.Fatal("no result")
	}
	if res.Status != STATUS_DONE || res.Query.ClientId != "client1" || res.Result["2"] != 2.0 {
		t.Errorf("unexpected result %v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := client.QueryStatus(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if status.ID != res.ID || status.Status != STATUS_DONE {
		t.Errorf("unexpected status %v", status)
	}
	status, err = client.QueryStatus(ctx, "q100")
	if err != nil || status.Error == "" {
		t.Errorf("expected an unknown query error in the result, got %v, %v", status, err)
	}

	client.Stop()
	for range notifyCh {
	}
}

func TestOpenGraphStoreSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("")
	cfg.GraphSource = database.DRIVER_SQLITE
	cfg.SQLDSN = ":memory:"
	store, closeStore, err := OpenGraphStore(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()

	vertices, err := database.ParseInputGraph(strings.NewReader(chainGraph), database.FORMAT_EDGES)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AddGraph(ctx, "chain", vertices); err != nil {
		t.Fatal(err)
	}

	c := NewCoord(cfg, store)
	defer c.Stop()
	res, err := c.StartQuery(ctx, Query{QueryType: "sp", Nodes: []uint64{4, 3}, Graph: "chain"})
	if err != nil || res.Status != STATUS_DONE {
		t.Fatalf("%v: %v", res, err)
	}
	if res.Result["3"] != 4.0 {
		t.Errorf("unexpected distance %v", res.Result["3"])
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
	cfg := DefaultConfig()
	cfg.GraphSource = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unknown source")
	}
	cfg = DefaultConfig()
	cfg.ClientAPIListenAddr, cfg.ExternalAPIListenAddr = "", ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error without listen addresses")
	}
}

func TestStructConversion(t *testing.T) {
	q := Query{ClientId: "c", QueryType: kernels.PAGE_RANK, Nodes: []uint64{1, maxExactId}, Graph: "g", Damping: 0.9}
	s, err := toStruct(q)
	if err != nil {
		t.Fatal(err)
	}
	var got Query
	if err := fromStruct(s, &got); err != nil {
		t.Fatal(err)
	}
	if got.ClientId != q.ClientId || got.Damping != q.Damping || got.Nodes[1] != maxExactId {
		t.Errorf("expected %+v, got %+v", q, got)
	}
	if err := checkIds([]uint64{maxExactId + 1}); err == nil {
		t.Error("expected an error above 2^53")
	}
}
