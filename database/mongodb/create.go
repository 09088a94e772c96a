package mongodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/util"
)

const DATABASE_NAME = "bagel"

// GetDatabaseClient connects to uri, or to MONGODB_URI from the
// environment (and .env) when uri is empty.
func GetDatabaseClient(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		util.LoadEnv(".env")
		uri = util.EnvOr("MONGODB_URI", "")
	}
	if uri == "" {
		return nil, fmt.Errorf("mongodb: no connection uri configured")
	}

	serverAPIOptions := options.ServerAPI(options.ServerAPIVersion1)
	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(serverAPIOptions)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to mongodb")
	return client, nil
}

// Store keeps each graph in its own collection of the bagel database.
type Store struct {
	client *mongo.Client
}

func NewStore(client *mongo.Client) *Store {
	return &Store{client: client}
}

func (s *Store) GetCollection(graph string) *mongo.Collection {
	return s.client.Database(DATABASE_NAME).Collection(graph)
}

func (s *Store) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func createBatches(vertices []database.Vertex) [][]interface{} {
	vertexBatches := database.CreateBatches(vertices)
	batches := make([][]interface{}, len(vertexBatches))
	for b, batch := range vertexBatches {
		batches[b] = make([]interface{}, len(batch))
		for i, vertex := range batch {
			batches[b][i] = toDocument(vertex)
		}
	}
	return batches
}

func toDocument(vertex database.Vertex) bson.D {
	doc := bson.D{
		{Key: "ID", Value: strconv.FormatUint(vertex.ID, 10)},
		{Key: "Edges", Value: formatEdges(vertex.Edges)},
		{Key: "Hash", Value: strconv.FormatUint(vertex.Hash, 10)},
	}
	if len(vertex.Weights) > 0 {
		weights := make([]string, len(vertex.Weights))
		for i, w := range vertex.Weights {
			weights[i] = strconv.FormatFloat(w, 'g', -1, 64)
		}
		doc = append(doc, bson.E{Key: "Weights", Value: weights})
	}
	return doc
}

func formatEdges(edges []uint64) []string {
	formattedEdges := make([]string, len(edges))
	for idx, edge := range edges {
		formattedEdges[idx] = strconv.FormatUint(edge, 10)
	}
	return formattedEdges
}

func BatchInsertVertices(ctx context.Context, collection *mongo.Collection, batches [][]interface{}) error {
	numBatches := len(batches)
	for b := 0; b < numBatches; b++ {
		if _, err := collection.InsertMany(ctx, batches[b]); err != nil {
			return fmt.Errorf("upload batch %d: %w", b, err)
		}
		log.Debug().Int("batch", b+1).Int("of", numBatches).Msg("mongodb: uploaded")
	}
	log.Info().Int("batches", numBatches).Str("collection", collection.Name()).Msg("mongodb: graph added")
	return nil
}

func (s *Store) AddGraph(ctx context.Context, graph string, vertices []database.Vertex) error {
	return BatchInsertVertices(ctx, s.GetCollection(graph), createBatches(vertices))
}
