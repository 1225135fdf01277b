package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// Config is the configuration of the tool. Values of the config file are
// overridden by flags given on the command line.
type Config struct {
	Image      string `yaml:"image"`
	SectorSize uint64 `yaml:"sectorSize"`
	LogLevel   string `yaml:"logLevel"`
	TaskHandle bool   `yaml:"taskHandle"`
}

func defaultConfig() Config {
	return Config{
		SectorSize: 512,
		LogLevel:   "warning",
	}
}

// readConfig reads the config file at path. A missing file is not an error
// unless required is set.
func readConfig(fs afero.Fs, path string, required bool) (Config, error) {
	config := defaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return config, nil
		}
		return config, fmt.Errorf("failed to read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return config, nil
}

// overrideFlags copies all flags which were set explicitly into config.
func overrideFlags(cmd *cobra.Command, flags Config, config *Config) {
	if cmd.Flags().Changed("image") {
		config.Image = flags.Image
	}
	if cmd.Flags().Changed("sector-size") {
		config.SectorSize = flags.SectorSize
	}
	if cmd.Flags().Changed("log-level") {
		config.LogLevel = flags.LogLevel
	}
	if cmd.Flags().Changed("task-handle") {
		config.TaskHandle = flags.TaskHandle
	}
}
