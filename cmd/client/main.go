package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/gokcedilek/bagel/coord"
	"github.com/gokcedilek/bagel/kernels"
	"github.com/gokcedilek/bagel/util"
)

const DEFAULT_GRAPH = "bagel"

func usage() {
	fmt.Println("Usage: ./bin/client [pagerank|shortestpath|bfs|cc] [vertexId]...")
	fmt.Println("Example: ./bin/client pagerank 11")
	fmt.Println("Example: ./bin/client shortestpath 11 54")
	fmt.Println("The graph is read from BAGEL_GRAPH (default " + DEFAULT_GRAPH + ").")
}

func main() {
	// read config
	var config coord.ClientConfig
	err := util.ReadJSONConfig(util.GetConfigPath(util.CONFIG_DIR, "client_config.json"), &config)
	util.CheckErr(err, "Error reading client config: %v\n", err)

	closer, err := util.SetupLogger(config.ClientId, "info", util.LOG_FILE)
	util.CheckErr(err, "Error opening log file: %v\n", err)
	defer closer.Close()

	if len(os.Args) < 3 {
		usage()
		return
	}
	queryType, err := kernels.ParseQueryType(os.Args[1])
	if err != nil {
		usage()
		return
	}
	query := coord.Query{
		ClientId:  config.ClientId,
		QueryType: queryType,
		Graph:     util.EnvOr("BAGEL_GRAPH", DEFAULT_GRAPH),
	}
	for _, arg := range os.Args[2:] {
		v, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			log.Error().Str("vertex", arg).Msg("Provided vertex could not be converted to integer")
			usage()
			return
		}
		query.Nodes = append(query.Nodes, v)
	}
	if err := kernels.ValidateNodes(queryType, query.Nodes); err != nil {
		log.Error().Err(err).Msg("invalid query")
		usage()
		return
	}

	client := coord.NewClient()
	notifyCh, err := client.Start(config.ClientId, config.CoordAddr)
	util.CheckErr(err, "Error connecting to coord: %v\n", err)
	defer client.Stop()

	err = client.SendQuery(query)
	util.CheckErr(err, "Error sending query: %v\n", err)
	log.Info().Str("type", query.QueryType).Uints64("nodes", query.Nodes).Msg("Client sent query")

	result := <-notifyCh
	if result.Error != "" {
		log.Error().Str("error", result.Error).Msg("SendQuery error")
	}
	fmt.Println(result)
}
