package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	neighborDelim = "."
	weightDelim   = ","
)

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// table names cannot be bound, so graph names are restricted to identifiers
func tableName(graph string) (string, error) {
	if !validTable.MatchString(graph) {
		return "", fmt.Errorf("invalid graph name %q", graph)
	}
	return graph, nil
}

func (s *SQLStore) GetVertexById(ctx context.Context, graph string, id uint64) (Vertex, error) {
	table, err := tableName(graph)
	if err != nil {
		return Vertex{}, err
	}
	qs := fmt.Sprintf("SELECT srcVertex, hash, neighbors, weights FROM %s WHERE srcVertex = %s;",
		table, s.placeholders(1))
	v, err := scanVertex(s.db.QueryRowContext(ctx, qs, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return Vertex{}, fmt.Errorf("%d: unknown ID", id)
	}
	return v, err
}

// Vertices reads the whole graph ordered by vertex id.
func (s *SQLStore) Vertices(ctx context.Context, graph string) ([]Vertex, error) {
	table, err := tableName(graph)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT srcVertex, hash, neighbors, weights FROM %s ORDER BY srcVertex;", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVertices(rows)
}

// GetVerticesModulo returns the vertices whose id is workerId modulo
// numWorkers.
func (s *SQLStore) GetVerticesModulo(ctx context.Context, graph string, workerId uint32, numWorkers uint8) ([]Vertex, error) {
	table, err := tableName(graph)
	if err != nil {
		return nil, err
	}
	if numWorkers == 0 {
		return nil, errors.New("numWorkers must be positive")
	}
	qs := fmt.Sprintf("SELECT srcVertex, hash, neighbors, weights FROM %s WHERE srcVertex %% %d = %d ORDER BY srcVertex;",
		table, numWorkers, workerId)
	rows, err := s.db.QueryContext(ctx, qs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanVertices(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVertex(row rowScanner) (Vertex, error) {
	var id int64
	var hash, neighbors, weights string
	if err := row.Scan(&id, &hash, &neighbors, &weights); err != nil {
		return Vertex{}, err
	}
	hashNum, err := strconv.ParseUint(hash, 10, 64)
	if err != nil {
		return Vertex{}, fmt.Errorf("vertex %d: bad hash %q", id, hash)
	}
	edges, err := convertStringToArray(neighbors, neighborDelim)
	if err != nil {
		return Vertex{}, fmt.Errorf("vertex %d: %w", id, err)
	}
	ws, err := convertStringToWeights(weights)
	if err != nil {
		return Vertex{}, fmt.Errorf("vertex %d: %w", id, err)
	}
	return Vertex{ID: uint64(id), Edges: edges, Weights: ws, Hash: hashNum}, nil
}

func scanVertices(rows *sql.Rows) ([]Vertex, error) {
	var vertices []Vertex
	for rows.Next() {
		v, err := scanVertex(rows)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, v)
	}
	return vertices, rows.Err()
}

func joinEdges(edges []uint64) string {
	parts := make([]string, len(edges))
	for i, e := range edges {
		parts[i] = strconv.FormatUint(e, 10)
	}
	return strings.Join(parts, neighborDelim)
}

func joinWeights(weights []float64) string {
	parts := make([]string, len(weights))
	for i, w := range weights {
		parts[i] = strconv.FormatFloat(w, 'g', -1, 64)
	}
	return strings.Join(parts, weightDelim)
}

func convertStringToArray(a string, delim string) ([]uint64, error) {
	neighborSlice := []uint64{}
	if len(strings.TrimSpace(a)) == 0 {
		return neighborSlice, nil
	}
	for _, v := range strings.Split(a, delim) {
		neighborID, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad neighbor %q", v)
		}
		neighborSlice = append(neighborSlice, neighborID)
	}
	return neighborSlice, nil
}

func convertStringToWeights(a string) ([]float64, error) {
	if len(strings.TrimSpace(a)) == 0 {
		return nil, nil
	}
	var weights []float64
	for _, v := range strings.Split(a, weightDelim) {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("bad weight %q", v)
		}
		weights = append(weights, w)
	}
	return weights, nil
}
