package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

/*
	Config shapes re-stated here to avoid circular dependency
		github.com/gokcedilek/bagel/coord imports util
		(IF IMPORT) then util imports coord
	Only the fields SynchronizeConfigs touches are listed for the coord;
	client configs are rewritten, so they are restated in full.
*/

type coordAddrs struct {
	ClientAPIListenAddr   string
	ExternalAPIListenAddr string
}

type ClientConfig struct {
	ClientId   string
	CoordAddr  string
	ClientAddr string
}

const (
	CONFIG_DIR   = "config"
	COORD_CONFIG = "coord_config.json"
	CLIENT       = "client"
)

// SynchronizeConfigs points every client config in dir at the coord's
// client API address. It returns the client config files it rewrote.
func SynchronizeConfigs(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var coord coordAddrs
	err = ReadJSONConfig(GetConfigPath(dir, COORD_CONFIG), &coord)
	if err != nil {
		return nil, err
	}
	if coord.ClientAPIListenAddr == "" {
		return nil, fmt.Errorf("%s: ClientAPIListenAddr is empty", COORD_CONFIG)
	}

	var synced []string
	for _, file := range files {
		filename := file.Name()
		if file.IsDir() || !IsClientConfig(filename) {
			continue
		}

		var client ClientConfig
		path := GetConfigPath(dir, filename)
		if err := ReadJSONConfig(path, &client); err != nil {
			return synced, err
		}
		client.CoordAddr = coord.ClientAPIListenAddr
		if err := WriteJSONConfig(path, client); err != nil {
			return synced, err
		}
		synced = append(synced, filename)
	}
	return synced, nil
}

func IsClientConfig(filename string) bool {
	return strings.HasPrefix(filename, CLIENT) && strings.HasSuffix(filename, ".json")
}

func GetConfigPath(dir, filename string) string {
	return filepath.Join(dir, filename)
}
