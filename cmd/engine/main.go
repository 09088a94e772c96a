package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gokcedilek/bagel/bagel"
	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/kernels"
	"github.com/gokcedilek/bagel/util"
)

func main() {
	var (
		graphPath   = flag.String("graph", "", "graph file")
		format      = flag.String("format", database.FORMAT_EDGES, "graph file format: edges or adj")
		configPath  = flag.String("config", "", "engine config JSON (optional)")
		queryType   = flag.String("kernel", kernels.BFS_QUERY, "BFS, PageRank, ShortestPath or ConnectedComponents")
		nodesFlag   = flag.String("nodes", "", "comma separated vertex ids")
		numPEs      = flag.Int("pes", 0, "processing elements")
		topology    = flag.String("topology", "", "mesh or bus")
		partitioner = flag.String("partitioner", "", "modulo, hash or block")
		latency     = flag.Int("latency", 0, "pipeline latency in cycles")
		iterations  = flag.Uint64("iterations", 0, "PageRank iterations")
		checkpoints = flag.String("checkpoints", "", "checkpoint database; requires CheckpointEvery")
		verify      = flag.Bool("verify", false, "compare against a serial run")
		level       = flag.String("log", "info", "log level")
	)
	flag.Parse()

	closer, err := util.SetupLogger("engine", *level, util.LOG_FILE)
	util.CheckErr(err, "Error opening log file: %v\n", err)
	defer closer.Close()

	if *graphPath == "" || *nodesFlag == "" {
		fmt.Println("Usage: ./bin/engine -graph PATH -kernel TYPE -nodes ID[,ID...] [flags]")
		fmt.Println("Example: ./bin/engine -graph graphs/google.txt -kernel bfs -nodes 0 -pes 4 -verify")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := bagel.DefaultConfig()
	if *configPath != "" {
		err := util.ReadJSONConfig(*configPath, &cfg)
		util.CheckErr(err, "Error reading engine config: %v\n", err)
	}
	if *numPEs > 0 {
		cfg.NumPEs = *numPEs
	}
	if *topology != "" {
		cfg.Topology = *topology
	}
	if *partitioner != "" {
		cfg.Partitioner = *partitioner
	}
	if *latency > 0 {
		cfg.PipelineLatency = *latency
	}

	nodes, err := parseNodes(*nodesFlag)
	util.CheckErr(err, "Error parsing nodes: %v\n", err)

	vertices, err := database.ReadGraphFile(*graphPath, *format)
	util.CheckErr(err, "Error reading graph: %v\n", err)
	adj := database.ToAdjacency(vertices)

	job, err := kernels.Build(*queryType, adj, nodes, kernels.Options{Iterations: *iterations})
	util.CheckErr(err, "Error building query: %v\n", err)

	var opts []bagel.Option
	if *checkpoints != "" {
		store, err := bagel.OpenCheckpointStore(*checkpoints)
		util.CheckErr(err, "Error opening checkpoints: %v\n", err)
		defer store.Close()
		opts = append(opts, bagel.WithCheckpointer(store.ForQuery(job.QueryType)))
	}

	engine, err := bagel.New(cfg, adj, job.Kernel, opts...)
	util.CheckErr(err, "Error building engine: %v\n", err)
	for pe := 0; pe < engine.Layout().NumPEs(); pe++ {
		log.Debug().
			Int("pe", pe).
			Int("vertices", len(engine.Layout().Locals(bagel.PEID(pe)))).
			Msg("partition")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	res, err := engine.Run(ctx, job.Seeds...)
	util.CheckErr(err, "Run failed: %v\n", err)
	if res.KernelError != nil {
		log.Warn().Err(res.KernelError).Msg("kernel error")
	}

	values := job.Values(res.States)
	ids := make([]bagel.VertexID, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Printf("%d\t%v\n", id, values[id])
	}
	fmt.Printf("rounds=%d messages=%d cycles=%d\n", res.Rounds, res.Messages, res.Cycles)
	for _, s := range res.PEs {
		log.Info().
			Uint32("pe", uint32(s.PE)).
			Uint64("applied", s.Applied).
			Uint64("collisions", s.Collisions).
			Uint64("stalls", s.StallCycles).
			Msg("pe stats")
	}

	if *verify {
		want, _, refErr := bagel.RunReference(adj, job.Kernel, job.Seeds)
		if refErr != nil {
			log.Warn().Err(refErr).Msg("reference kernel error")
		}
		if err := bagel.CompareResults(job.Kernel, want, res.States); err != nil {
			fmt.Println("verify: MISMATCH:", err)
			os.Exit(1)
		}
		fmt.Println("verify: ok")
	}
}

func parseNodes(s string) ([]uint64, error) {
	var nodes []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("vertex %q is not an integer", part)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
