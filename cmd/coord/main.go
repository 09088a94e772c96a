package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gokcedilek/bagel/bagel"
	"github.com/gokcedilek/bagel/coord"
	"github.com/gokcedilek/bagel/database"
	"github.com/gokcedilek/bagel/util"
)

func main() {
	path := util.GetConfigPath(util.CONFIG_DIR, util.COORD_CONFIG)
	if len(os.Args) == 2 {
		path = os.Args[1]
	}
	config, err := coord.ReadConfig(path)
	util.CheckErr(err, "Error reading coord config: %v\n", err)

	closer, err := util.SetupLogger("coord", config.LogLevel, util.LOG_FILE)
	util.CheckErr(err, "Error opening log file: %v\n", err)
	defer closer.Close()

	if err := util.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("could not load .env")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, release, err := coord.OpenGraphStore(ctx, config)
	util.CheckErr(err, "Error opening graph source %s: %v\n", config.GraphSource, err)
	defer release()

	var opts []coord.Option
	if config.CheckpointDB != "" {
		checkpoints, err := bagel.OpenCheckpointStore(config.CheckpointDB)
		util.CheckErr(err, "Error opening checkpoints: %v\n", err)
		opts = append(opts, coord.WithCheckpointStore(checkpoints))
	}
	if config.RedisAddr != "" {
		writer := database.NewGoRedisWriter(config.RedisAddr)
		defer writer.Close()
		ttl := time.Duration(config.ResultTTLHours) * time.Hour
		opts = append(opts, coord.WithResultSink(database.NewResultSink(writer, ttl)))
	}

	c := coord.NewCoord(config, store, opts...)
	log.Info().Str("source", config.GraphSource).Int("pes", config.Engine.NumPEs).Msg("coord starting")
	if err := c.Start(ctx); err != nil {
		log.Error().Err(err).Msg("coord stopped")
		os.Exit(1)
	}
}
