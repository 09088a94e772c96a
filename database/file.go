package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// FORMAT_EDGES is one edge per line: "src dst [weight]", as in the
	// SNAP datasets (web-Google.txt).
	FORMAT_EDGES = "edges"
	// FORMAT_ADJ is one vertex per line: "src n1 n2 ...".
	FORMAT_ADJ = "adj"
)

// ParseInputGraph reads a graph in the given format. Lines starting with
// '#' and blank lines are skipped. Destinations without out-edges become
// vertices with no edges.
func ParseInputGraph(r io.Reader, format string) ([]Vertex, error) {
	graph := make(Graph)
	weights := make(map[uint64][]float64)
	weighted := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		src, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad vertex %q", lineNum, fields[0])
		}
		if _, ok := graph[src]; !ok {
			graph[src] = []uint64{}
		}

		switch format {
		case FORMAT_ADJ:
			for _, f := range fields[1:] {
				dst, err := strconv.ParseUint(f, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad neighbor %q", lineNum, f)
				}
				graph[src] = append(graph[src], dst)
				if graph[dst] == nil {
					graph[dst] = []uint64{}
				}
			}
		case FORMAT_EDGES, "":
			if len(fields) < 2 || len(fields) > 3 {
				return nil, fmt.Errorf("line %d: want \"src dst [weight]\"", lineNum)
			}
			dst, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad vertex %q", lineNum, fields[1])
			}
			w := 1.0
			if len(fields) == 3 {
				w, err = strconv.ParseFloat(fields[2], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad weight %q", lineNum, fields[2])
				}
				weighted = true
			}
			graph[src] = append(graph[src], dst)
			weights[src] = append(weights[src], w)
			if graph[dst] == nil {
				graph[dst] = []uint64{}
			}
		default:
			return nil, fmt.Errorf("unknown graph format %q", format)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !weighted {
		weights = nil
	}
	vertices := graphToVertices(graph, weights)
	log.Info().Int("vertices", len(vertices)).Msg("ParseInputGraph: parsed graph")
	return vertices, nil
}

func ReadGraphFile(path, format string) ([]Vertex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseInputGraph(file, format)
}

// FileStore serves graphs from text files in Dir. A graph named "google"
// is read from "google.txt" (or "google" if that file has no extension).
type FileStore struct {
	Dir    string
	Format string
}

func (s FileStore) path(graph string) string {
	candidate := filepath.Join(s.Dir, graph)
	if filepath.Ext(graph) == "" {
		if _, err := os.Stat(candidate + ".txt"); err == nil {
			return candidate + ".txt"
		}
	}
	return candidate
}

func (s FileStore) Vertices(ctx context.Context, graph string) ([]Vertex, error) {
	return ReadGraphFile(s.path(graph), s.Format)
}

// AddGraph writes vertices as an edge list.
func (s FileStore) AddGraph(ctx context.Context, graph string, vertices []Vertex) error {
	name := graph
	if filepath.Ext(name) == "" {
		name += ".txt"
	}
	file, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "# bagel graph %s: %d vertices\n", graph, len(vertices))
	for _, v := range vertices {
		for i, dst := range v.Edges {
			if i < len(v.Weights) {
				fmt.Fprintf(w, "%d\t%d\t%g\n", v.ID, dst, v.Weights[i])
			} else {
				fmt.Fprintf(w, "%d\t%d\n", v.ID, dst)
			}
		}
	}
	return w.Flush()
}
