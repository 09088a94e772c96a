package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// CreateTable creates a vertex table keyed by ID and waits until it is
// active. An existing table is left alone.
func (s *DynamoStore) CreateTable(ctx context.Context, tableName string) error {
	bagelDefinition := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("ID"),
				AttributeType: types.ScalarAttributeTypeN,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("ID"),
				KeyType:       types.KeyTypeHash,
			},
		},
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
	}

	_, err := s.svc.CreateTable(ctx, bagelDefinition)
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		log.Info().Str("table", tableName).Msg("CreateTable: table exists")
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table %s: %w", tableName, err)
	}
	log.Info().Str("table", tableName).Msg("CreateTable: created")
	return waitForTable(ctx, s.svc, tableName)
}

// AddGraph creates the table when needed and uploads every vertex.
func (s *DynamoStore) AddGraph(ctx context.Context, tableName string, vertices []Vertex) error {
	if err := s.CreateTable(ctx, tableName); err != nil {
		return err
	}
	return s.BatchInsertVertices(ctx, tableName, CreateBatches(vertices))
}

func waitForTable(ctx context.Context, db *dynamodb.Client, tn string) error {
	w := dynamodb.NewTableExistsWaiter(db)
	return w.Wait(ctx,
		&dynamodb.DescribeTableInput{
			TableName: aws.String(tn),
		},
		2*time.Minute,
		func(o *dynamodb.TableExistsWaiterOptions) {
			o.MaxDelay = 5 * time.Second
			o.MinDelay = 5 * time.Second
		})
}
