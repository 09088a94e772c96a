package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

const DEFAULT_REGION = "us-east-2"

type DynamoConfig struct {
	Region   string
	Endpoint string // e.g. a local DynamoDB; empty uses AWS
	// static credentials; empty falls back to the default chain
	AccessKeyID     string
	SecretAccessKey string
}

// DynamoStore keeps one graph per table, one item per vertex.
type DynamoStore struct {
	svc *dynamodb.Client
}

func GetDynamoClient(ctx context.Context, cfg DynamoConfig) (*dynamodb.Client, error) {
	if cfg.Region == "" {
		cfg.Region = DEFAULT_REGION
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
				},
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return dynamodb.NewFromConfig(awsConfig), nil
}

func NewDynamoStore(svc *dynamodb.Client) *DynamoStore {
	return &DynamoStore{svc: svc}
}

func (s *DynamoStore) GetVertexByID(ctx context.Context, tableName string, vertexId uint64) (Vertex, error) {
	res, err := s.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tableName),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberN{Value: strconv.FormatUint(vertexId, 10)},
		},
	})
	if err != nil {
		return Vertex{}, err
	}
	if res.Item == nil {
		return Vertex{}, fmt.Errorf("vertex %d not found in %s", vertexId, tableName)
	}

	vertex := Vertex{}
	err = attributevalue.UnmarshalMap(res.Item, &vertex)
	return vertex, err
}

// Vertices scans the whole table.
func (s *DynamoStore) Vertices(ctx context.Context, tableName string) ([]Vertex, error) {
	var vertices []Vertex
	paginator := dynamodb.NewScanPaginator(s.svc, &dynamodb.ScanInput{
		TableName: aws.String(tableName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		batch, err := unmarshalVertices(page.Items)
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, batch...)
	}
	log.Info().Str("table", tableName).Int("vertices", len(vertices)).Msg("DynamoStore: scanned graph")
	return vertices, nil
}

// GetPartition returns the vertices whose hash falls in partitionNum.
func (s *DynamoStore) GetPartition(ctx context.Context, tableName string, numPartitions, partitionNum int) ([]Vertex, error) {
	all, err := s.Vertices(ctx, tableName)
	if err != nil {
		return nil, err
	}
	var part []Vertex
	for _, v := range all {
		if int(v.Hash%uint64(numPartitions)) == partitionNum {
			part = append(part, v)
		}
	}
	return part, nil
}

func unmarshalVertices(items []map[string]types.AttributeValue) ([]Vertex, error) {
	var vertices []Vertex
	if err := attributevalue.UnmarshalListOfMaps(items, &vertices); err != nil {
		return nil, err
	}
	return vertices, nil
}

func (s *DynamoStore) BatchInsertVertices(ctx context.Context, tableName string, batches [][]Vertex) error {
	for b, batch := range batches {
		requests := make([]types.WriteRequest, len(batch))
		for i, v := range batch {
			requests[i] = marshalVertexWriteReq(v)
		}
		out, err := s.svc.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{tableName: requests},
		})
		if err != nil {
			return fmt.Errorf("batch %d/%d: %w", b+1, len(batches), err)
		}
		if n := len(out.UnprocessedItems[tableName]); n > 0 {
			return fmt.Errorf("batch %d/%d: %d items unprocessed", b+1, len(batches), n)
		}
		log.Debug().Int("batch", b+1).Int("of", len(batches)).Msg("BatchInsertVertices: uploaded")
	}
	return nil
}

func marshalVertexWriteReq(vertex Vertex) types.WriteRequest {
	item := map[string]types.AttributeValue{
		"ID":    &types.AttributeValueMemberN{Value: strconv.FormatUint(vertex.ID, 10)},
		"Edges": &types.AttributeValueMemberL{Value: edgesToAttributeValueSlice(vertex.Edges)},
		"Hash":  &types.AttributeValueMemberN{Value: strconv.FormatUint(vertex.Hash, 10)},
	}
	if len(vertex.Weights) > 0 {
		weights := make([]types.AttributeValue, len(vertex.Weights))
		for i, w := range vertex.Weights {
			weights[i] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(w, 'g', -1, 64)}
		}
		item["Weights"] = &types.AttributeValueMemberL{Value: weights}
	}
	return types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
}

func edgesToAttributeValueSlice(edges []uint64) []types.AttributeValue {
	as := make([]types.AttributeValue, len(edges))
	for idx, edge := range edges {
		as[idx] = &types.AttributeValueMemberN{Value: strconv.FormatUint(edge, 10)}
	}
	return as
}
