package cmd

import (
	"fmt"
	"os"

	"github.com/renmiamu/dvnet/state"
)

// readNetwork loads and validates the network half of the config file
func readNetwork() (*state.NetworkCfg, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := state.ParseConfig(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}
	if err = state.NetworkConfigValidator(&cfg.NetworkCfg); err != nil {
		return nil, err
	}
	return &cfg.NetworkCfg, nil
}
