package main

import (
	"fmt"
	"os"

	"github.com/gokcedilek/bagel/bagel"
	"github.com/gokcedilek/bagel/coord"
	"github.com/gokcedilek/bagel/util"
)

func usage() {
	fmt.Println("usage: ./bin/config [sync|init]")
	fmt.Println("example ./bin/config sync")
}

func main() {
	if len(os.Args) != 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "sync":
		synced, err := util.SynchronizeConfigs(util.CONFIG_DIR)
		if err != nil {
			fmt.Println("Failed to synchronize config files", err)
			os.Exit(1)
		}
		fmt.Println("synchronized", synced)
	case "init":
		if err := writeDefaults(util.CONFIG_DIR); err != nil {
			fmt.Println("Failed to write config files", err)
			os.Exit(1)
		}
	default:
		usage()
	}
}

// writeDefaults writes every missing config file with default values.
func writeDefaults(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	coordConfig := coord.DefaultConfig()
	defaults := map[string]interface{}{
		util.COORD_CONFIG:    coordConfig,
		"engine_config.json": bagel.DefaultConfig(),
		"client_config.json": util.ClientConfig{
			ClientId:   "client1",
			CoordAddr:  coordConfig.ClientAPIListenAddr,
			ClientAddr: "127.0.0.1:0",
		},
	}
	for name, config := range defaults {
		path := util.GetConfigPath(dir, name)
		if _, err := os.Stat(path); err == nil {
			fmt.Println("exists:", path)
			continue
		}
		if err := util.WriteJSONConfig(path, config); err != nil {
			return err
		}
		fmt.Println("wrote:", path)
	}
	return nil
}
