package coord

import (
	"context"

	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/database/mongodb"
	"github.com/gokcedilek/bagel/util"
)

// OpenGraphStore connects to the graph store named by cfg.GraphSource.
// The returned function releases the connection.
func OpenGraphStore(ctx context.Context, cfg CoordConfig) (database.GraphStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.GraphSource {
	case SOURCE_DYNAMO:
		svc, err := database.GetDynamoClient(ctx, database.DynamoConfig{
			Region:          cfg.DynamoRegion,
			Endpoint:        util.EnvOr("DYNAMODB_ENDPOINT", ""),
			AccessKeyID:     util.EnvOr("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: util.EnvOr("AWS_SECRET_ACCESS_KEY", ""),
		})
		if err != nil {
			return nil, nil, err
		}
		return database.NewDynamoStore(svc), noop, nil

	case SOURCE_MONGO:
		client, err := mongodb.GetDatabaseClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := mongodb.NewStore(client)
		return store, func() error { return store.Disconnect(context.Background()) }, nil

	case database.DRIVER_SQLSERVER, database.DRIVER_MYSQL, database.DRIVER_SQLITE:
		dsn := cfg.SQLDSN
		if dsn == "" {
			dsn = util.EnvOr("SQL_DSN", "")
		}
		store, err := database.OpenSQLStore(cfg.GraphSource, dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	format := cfg.GraphFormat
	if format == "" {
		format = database.FORMAT_EDGES
	}
	return database.FileStore{Dir: cfg.GraphDir, Format: format}, noop, nil
}
