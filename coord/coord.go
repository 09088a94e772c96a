package coord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gokcedilek/bagel/bagel"
	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/kernels"
)

var (
	ErrUnknownQuery  = errors.New("unknown query")
	ErrNoCheckpoints = errors.New("checkpoints are disabled")
)

const publishTimeout = 5 * time.Second

type Option func(*Coord)

func WithCheckpointStore(store *bagel.CheckpointStore) Option {
	return func(c *Coord) { c.checkpoints = store }
}

func WithResultSink(sink *database.ResultSink) Option {
	return func(c *Coord) { c.sink = sink }
}

type graphEntry struct {
	adj bagel.Adjacency
	ids []bagel.VertexID // sorted
}

func (g *graphEntry) has(id bagel.VertexID) bool {
	i := sort.Search(len(g.ids), func(i int) bool { return g.ids[i] >= id })
	return i < len(g.ids) && g.ids[i] == id
}

type queryRecord struct {
	seq  uint64
	job  *kernels.Job
	done chan struct{}

	mx     sync.Mutex
	result QueryResult
}

func (r *queryRecord) snapshot() QueryResult {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.result
}

// Coord answers graph queries, running one engine per query over graphs
// loaded from its GraphSource.
type Coord struct {
	cfg         CoordConfig
	source      database.GraphSource
	checkpoints *bagel.CheckpointStore
	sink        *database.ResultSink

	// queries run under ctx until Stop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	graphMx sync.Mutex // serializes graph loads
	mx      sync.Mutex
	graphs  map[string]*graphEntry
	queries map[string]*queryRecord
	nextSeq uint64
}

func NewCoord(cfg CoordConfig, source database.GraphSource, opts ...Option) *Coord {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coord{
		cfg:     cfg,
		source:  source,
		ctx:     ctx,
		cancel:  cancel,
		graphs:  make(map[string]*graphEntry),
		queries: make(map[string]*queryRecord),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coord) loadGraph(ctx context.Context, name string) (*graphEntry, error) {
	c.graphMx.Lock()
	defer c.graphMx.Unlock()

	c.mx.Lock()
	g, ok := c.graphs[name]
	c.mx.Unlock()
	if ok {
		return g, nil
	}

	start := time.Now()
	vertices, err := c.source.Vertices(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load graph %q: %w", name, err)
	}
	if len(vertices) == 0 {
		return nil, fmt.Errorf("load graph %q: no vertices", name)
	}
	adj := database.ToAdjacency(vertices)
	g = &graphEntry{adj: adj, ids: adj.Vertices()}

	c.mx.Lock()
	c.graphs[name] = g
	c.mx.Unlock()
	log.Info().
		Str("graph", name).
		Int("vertices", len(g.ids)).
		Dur("took", time.Since(start)).
		Msg("loadGraph: cached")
	return g, nil
}

// Submit validates q and starts running it. It returns the query id.
func (c *Coord) Submit(ctx context.Context, q Query) (string, error) {
	queryType, err := kernels.ParseQueryType(q.QueryType)
	if err != nil {
		return "", err
	}
	q.QueryType = queryType
	if err := kernels.ValidateNodes(queryType, q.Nodes); err != nil {
		return "", err
	}

	g, err := c.loadGraph(ctx, q.Graph)
	if err != nil {
		return "", err
	}
	for _, n := range q.Nodes {
		if !g.has(bagel.VertexID(n)) {
			return "", fmt.Errorf("%w: %d not in graph %q", bagel.ErrUnknownVertex, n, q.Graph)
		}
	}

	job, err := kernels.Build(queryType, g.adj, q.Nodes, kernels.Options{
		Damping:    q.Damping,
		Iterations: q.Iterations,
	})
	if err != nil {
		return "", err
	}

	c.mx.Lock()
	c.nextSeq++
	rec := &queryRecord{seq: c.nextSeq, job: job, done: make(chan struct{})}
	id := "q" + strconv.FormatUint(rec.seq, 10)
	rec.result = QueryResult{ID: id, Query: q, Status: STATUS_RUNNING}
	if c.checkpoints != nil {
		// ids restart with the process, the checkpoint file does not
		if err := c.checkpoints.Reset(id); err != nil {
			c.mx.Unlock()
			return "", fmt.Errorf("reset checkpoints of %s: %w", id, err)
		}
	}
	c.queries[id] = rec
	c.mx.Unlock()

	log.Info().
		Str("query", id).
		Str("type", queryType).
		Str("client", q.ClientId).
		Uints64("nodes", q.Nodes).
		Msg("Submit: running")

	c.wg.Add(1)
	go c.run(id, rec, g.adj)
	return id, nil
}

func (c *Coord) run(id string, rec *queryRecord, adj bagel.Adjacency) {
	defer c.wg.Done()
	queriesRunning.Inc()
	defer queriesRunning.Dec()

	var opts []bagel.Option
	if c.checkpoints != nil {
		opts = append(opts, bagel.WithCheckpointer(c.checkpoints.ForQuery(id)))
	}
	engine, err := bagel.New(c.cfg.Engine, adj, rec.job.Kernel, opts...)
	if err != nil {
		c.finish(id, rec, nil, err)
		return
	}
	res, err := engine.Run(c.ctx, rec.job.Seeds...)
	c.finish(id, rec, res, err)
}

func (c *Coord) finish(id string, rec *queryRecord, res *bagel.Result, err error) {
	rec.mx.Lock()
	r := &rec.result
	if err != nil {
		r.Status = STATUS_FAILED
		r.Error = err.Error()
	} else {
		r.Status = STATUS_DONE
		values := rec.job.Values(res.States)
		r.Result = formatValues(values)
		r.Rounds = res.Rounds
		r.Messages = res.Messages
		if res.KernelError != nil {
			r.Error = res.KernelError.Error()
		}
	}
	result := *r
	rec.mx.Unlock()

	queriesTotal.WithLabelValues(result.Query.QueryType, result.Status).Inc()
	if err != nil {
		log.Error().Err(err).Str("query", id).Msg("finish: query failed")
	} else {
		queryRounds.WithLabelValues(result.Query.QueryType).Observe(float64(result.Rounds))
		log.Info().
			Str("query", id).
			Uint64("rounds", result.Rounds).
			Uint64("messages", result.Messages).
			Msg("finish: query done")
		c.publish(id, rec.job, res)
	}
	close(rec.done)
}

func (c *Coord) publish(id string, job *kernels.Job, res *bagel.Result) {
	if c.sink == nil {
		return
	}
	values := make(map[uint64]interface{}, len(job.Report))
	for vid, v := range job.Values(res.States) {
		values[uint64(vid)] = v
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.sink.Publish(ctx, id, values); err != nil {
		log.Warn().Err(err).Str("query", id).Msg("publish: failed")
	}
}

func (c *Coord) record(id string) (*queryRecord, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	rec, ok := c.queries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, id)
	}
	return rec, nil
}

// Status returns the current state of a query.
func (c *Coord) Status(id string) (QueryResult, error) {
	rec, err := c.record(id)
	if err != nil {
		return QueryResult{}, err
	}
	return rec.snapshot(), nil
}

// Wait blocks until the query finishes or ctx is done.
func (c *Coord) Wait(ctx context.Context, id string) (QueryResult, error) {
	rec, err := c.record(id)
	if err != nil {
		return QueryResult{}, err
	}
	select {
	case <-rec.done:
		return rec.snapshot(), nil
	case <-ctx.Done():
		return rec.snapshot(), ctx.Err()
	}
}

// Queries lists every query in submission order.
func (c *Coord) Queries() []QueryResult {
	c.mx.Lock()
	recs := make([]*queryRecord, 0, len(c.queries))
	for _, rec := range c.queries {
		recs = append(recs, rec)
	}
	c.mx.Unlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	results := make([]QueryResult, len(recs))
	for i, rec := range recs {
		results[i] = rec.snapshot()
	}
	return results
}

// StartQuery runs q to completion. Query errors are reported in the
// result, not as an error.
func (c *Coord) StartQuery(ctx context.Context, q Query) (QueryResult, error) {
	id, err := c.Submit(ctx, q)
	if err != nil {
		log.Warn().Err(err).Str("client", q.ClientId).Msg("StartQuery: rejected")
		return QueryResult{Query: q, Status: STATUS_FAILED, Error: err.Error()}, nil
	}
	return c.Wait(ctx, id)
}

func (c *Coord) QueryStatus(ctx context.Context, id QueryID) (QueryResult, error) {
	res, err := c.Status(id.ID)
	if err != nil {
		return QueryResult{ID: id.ID, Error: err.Error()}, nil
	}
	return res, nil
}

// CheckpointRounds lists the checkpointed rounds of a query.
func (c *Coord) CheckpointRounds(id string) ([]uint64, error) {
	if c.checkpoints == nil {
		return nil, ErrNoCheckpoints
	}
	if _, err := c.record(id); err != nil {
		return nil, err
	}
	return c.checkpoints.Rounds(id)
}

// Checkpoint returns the summarized values of every vertex at round.
func (c *Coord) Checkpoint(id string, round uint64) (map[string]interface{}, error) {
	if c.checkpoints == nil {
		return nil, ErrNoCheckpoints
	}
	rec, err := c.record(id)
	if err != nil {
		return nil, err
	}
	states, err := c.checkpoints.RetrieveRound(id, round)
	if err != nil {
		return nil, err
	}
	values := make(map[bagel.VertexID]interface{}, len(states))
	for vid, st := range states {
		values[vid] = rec.job.Summarize(st)
	}
	return formatValues(values), nil
}

// Stop cancels running queries and waits for them.
func (c *Coord) Stop() {
	c.cancel()
	c.wg.Wait()
	if c.checkpoints != nil {
		if err := c.checkpoints.Close(); err != nil {
			log.Warn().Err(err).Msg("Stop: closing checkpoints")
		}
	}
}
