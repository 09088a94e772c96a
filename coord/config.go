package coord

import (
	"fmt"

	"github.com/gokcedilek/bagel/bagel"
	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/util"
)

// graph sources
const (
	SOURCE_FILE   = "file"
	SOURCE_DYNAMO = "dynamo"
	SOURCE_MONGO  = "mongo"
)

type CoordConfig struct {
	ClientAPIListenAddr   string
	ExternalAPIListenAddr string

	GraphSource  string
	GraphDir     string // file source
	GraphFormat  string // file source: edges or adj
	SQLDSN       string // sqlserver, mysql and sqlite3 sources
	MongoURI     string
	DynamoRegion string

	Engine       bagel.Config
	CheckpointDB string // empty disables checkpoints

	RedisAddr      string // empty disables result publishing
	ResultTTLHours int

	LogLevel string
}

func DefaultConfig() CoordConfig {
	return CoordConfig{
		ClientAPIListenAddr:   "127.0.0.1:50051",
		ExternalAPIListenAddr: "127.0.0.1:8080",
		GraphSource:           SOURCE_FILE,
		GraphDir:              "graphs",
		GraphFormat:           database.FORMAT_EDGES,
		Engine:                bagel.DefaultConfig(),
		CheckpointDB:          "checkpoints.db",
		LogLevel:              "info",
	}
}

func ReadConfig(path string) (CoordConfig, error) {
	config := DefaultConfig()
	if err := util.ReadJSONConfig(path, &config); err != nil {
		return config, err
	}
	return config, config.Validate()
}

func (c CoordConfig) Validate() error {
	if c.ClientAPIListenAddr == "" && c.ExternalAPIListenAddr == "" {
		return fmt.Errorf("coord config: no listen address")
	}
	switch c.GraphSource {
	case SOURCE_FILE, SOURCE_DYNAMO, SOURCE_MONGO,
		database.DRIVER_SQLSERVER, database.DRIVER_MYSQL, database.DRIVER_SQLITE:
	default:
		return fmt.Errorf("coord config: unknown GraphSource %q", c.GraphSource)
	}
	return c.Engine.WithDefaults().Validate()
}
