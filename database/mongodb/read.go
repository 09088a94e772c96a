package mongodb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gokcedilek/bagel/database"
)

// DBVertex is a vertex as stored: every number is a decimal string.
type DBVertex struct {
	ID      string
	Edges   []string
	Weights []string `bson:",omitempty"`
	Hash    string
}

func (s *Store) GetVertexById(ctx context.Context, graph string, vertexId uint64) (database.Vertex, error) {
	var dbVertex DBVertex
	err := s.GetCollection(graph).FindOne(
		ctx, bson.M{"ID": strconv.FormatUint(vertexId, 10)},
	).Decode(&dbVertex)
	if err != nil {
		return database.Vertex{}, fmt.Errorf("vertex %d: %w", vertexId, err)
	}
	return parseDBVertex(dbVertex)
}

func parseDBVertex(dbVertex DBVertex) (database.Vertex, error) {
	id, err := strconv.ParseUint(dbVertex.ID, 10, 64)
	if err != nil {
		return database.Vertex{}, fmt.Errorf("bad vertex id %q", dbVertex.ID)
	}
	edges := make([]uint64, len(dbVertex.Edges))
	for idx, edge := range dbVertex.Edges {
		if edges[idx], err = strconv.ParseUint(edge, 10, 64); err != nil {
			return database.Vertex{}, fmt.Errorf("vertex %d: bad edge %q", id, edge)
		}
	}
	var weights []float64
	if len(dbVertex.Weights) > 0 {
		weights = make([]float64, len(dbVertex.Weights))
		for idx, w := range dbVertex.Weights {
			if weights[idx], err = strconv.ParseFloat(w, 64); err != nil {
				return database.Vertex{}, fmt.Errorf("vertex %d: bad weight %q", id, w)
			}
		}
	}
	hash, err := strconv.ParseUint(dbVertex.Hash, 10, 64)
	if err != nil {
		return database.Vertex{}, fmt.Errorf("vertex %d: bad hash %q", id, dbVertex.Hash)
	}

	return database.Vertex{
		ID:      id,
		Edges:   edges,
		Weights: weights,
		Hash:    hash,
	}, nil
}

// Vertices reads every vertex of graph.
func (s *Store) Vertices(ctx context.Context, graph string) ([]database.Vertex, error) {
	return s.find(ctx, s.GetCollection(graph), bson.M{})
}

// GetPartitionForWorkerX returns the vertices of partition workerId out of
// numPartitions, tagging the collection with partition fields on first use.
func (s *Store) GetPartitionForWorkerX(ctx context.Context, graph string, numPartitions int, workerId int) ([]database.Vertex, error) {
	collection := s.GetCollection(graph)
	cached, err := isPartitionCached(ctx, collection, numPartitions)
	if err != nil {
		return nil, err
	}
	if !cached {
		log.Debug().Int("partitions", numPartitions).Msg("mongodb: partition not cached")
		if err := PartitionGraph(ctx, collection, numPartitions); err != nil {
			return nil, err
		}
	}

	return s.find(ctx, collection, bson.M{
		getPartitionName(numPartitions): strconv.Itoa(workerId),
	})
}

func (s *Store) find(ctx context.Context, collection *mongo.Collection, filter bson.M) ([]database.Vertex, error) {
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var dbVertices []DBVertex
	if err = cursor.All(ctx, &dbVertices); err != nil {
		return nil, err
	}

	vertices := make([]database.Vertex, 0, len(dbVertices))
	for _, dbVertex := range dbVertices {
		vertex, err := parseDBVertex(dbVertex)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, vertex)
	}
	return vertices, nil
}

// PartitionGraph stores hash % numPartitions on each vertex under the field
// P<numPartitions>.
func PartitionGraph(ctx context.Context, collection *mongo.Collection, numPartitions int) error {
	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return err
	}
	var vertices []DBVertex
	if err = cursor.All(ctx, &vertices); err != nil {
		return err
	}

	partitionName := getPartitionName(numPartitions)
	for _, vertex := range vertices {
		hash, err := strconv.ParseUint(vertex.Hash, 10, 64)
		if err != nil {
			return fmt.Errorf("vertex %s: bad hash %q", vertex.ID, vertex.Hash)
		}
		partition := strconv.FormatUint(hash%uint64(numPartitions), 10)
		if _, err = collection.UpdateOne(
			ctx, bson.M{"ID": vertex.ID},
			bson.D{{Key: "$set", Value: bson.M{partitionName: partition}}},
		); err != nil {
			return fmt.Errorf("vertex %s to partition %s: %w", vertex.ID, partition, err)
		}
	}
	log.Info().Int("vertices", len(vertices)).Str("field", partitionName).Msg("mongodb: graph partitioned")
	return nil
}

func getPartitionName(numPartitions int) string {
	return fmt.Sprintf("P%d", numPartitions)
}

func isPartitionCached(ctx context.Context, collection *mongo.Collection, numPartitions int) (bool, error) {
	cursor, err := collection.Find(
		ctx,
		bson.D{{Key: getPartitionName(numPartitions), Value: bson.D{{Key: "$exists", Value: true}}}},
		options.Find().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	var verticesInPartition []bson.M
	if err = cursor.All(ctx, &verticesInPartition); err != nil {
		return false, err
	}
	return len(verticesInPartition) != 0, nil
}
