package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/gokcedilek/bagel/coord"
	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/util"
)

func usage() {
	fmt.Println("Usage: ./bin/database [$1 STORE] [$2 GRAPH_NAME] [$3 <PATH_TO_GRAPH.txt>] [$4 edges|adj]")
	fmt.Println("STORE is one of file, dynamo, mongo, sqlserver, mysql, sqlite3.")
	fmt.Println("Connection settings come from config/coord_config.json and .env.")
}

func main() {
	closer, err := util.SetupLogger("database", "info", util.LOG_FILE)
	util.CheckErr(err, "Error opening log file: %v\n", err)
	defer closer.Close()

	if len(os.Args) != 4 && len(os.Args) != 5 {
		usage()
		return
	}
	format := database.FORMAT_EDGES
	if len(os.Args) == 5 {
		format = os.Args[4]
	}

	config := coord.DefaultConfig()
	path := util.GetConfigPath(util.CONFIG_DIR, util.COORD_CONFIG)
	if err := util.ReadJSONConfig(path, &config); err != nil {
		log.Warn().Err(err).Msg("using default connection settings")
	}
	config.GraphSource = os.Args[1]
	if err := config.Validate(); err != nil {
		usage()
		util.CheckErr(err, "Invalid store: %v\n", err)
	}
	if err := util.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("could not load .env")
	}

	vertices, err := database.ReadGraphFile(os.Args[3], format)
	util.CheckErr(err, "Error reading graph: %v\n", err)

	ctx := context.Background()
	store, release, err := coord.OpenGraphStore(ctx, config)
	util.CheckErr(err, "Error opening %s: %v\n", config.GraphSource, err)
	defer release()

	err = store.AddGraph(ctx, os.Args[2], vertices)
	util.CheckErr(err, "Error uploading graph: %v\n", err)
	log.Info().Str("graph", os.Args[2]).Int("vertices", len(vertices)).Msg("graph uploaded")
}
