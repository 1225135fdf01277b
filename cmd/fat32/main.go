// fat32 inspects FAT32 disk images.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aligator/gofat32"
	"github.com/aligator/gofat32/blockdev"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "fat32.yml"

// app holds everything the commands share.
type app struct {
	fs     afero.Fs
	config Config
	log    *logrus.Logger
}

// mount opens the configured image read only.
func (a *app) mount() (*gofat32.FileSystem, error) {
	if a.config.Image == "" {
		return nil, errors.New("no image given, use --image or the config file")
	}

	device, err := blockdev.Open(a.fs, a.config.Image, blockdev.WithPhysicalSectorSize(a.config.SectorSize), blockdev.ReadOnly())
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", a.config.Image, err)
	}

	opts := []gofat32.Option{gofat32.WithLogger(a.log)}
	if a.config.TaskHandle {
		opts = append(opts, gofat32.WithTaskHandle())
	}

	fsys, err := gofat32.Mount(device, opts...)
	if err != nil {
		_ = device.Close()
		return nil, fmt.Errorf("unable to mount %s: %w", a.config.Image, err)
	}
	return fsys, nil
}

// withVolume mounts the image, runs fn and unmounts it again.
func (a *app) withVolume(fn func(fsys *gofat32.FileSystem) error) error {
	fsys, err := a.mount()
	if err != nil {
		return err
	}

	err = fn(fsys)
	if closeErr := fsys.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func newCmd(fs afero.Fs, stderr io.Writer) *cobra.Command {
	var (
		configPath string
		flags      = defaultConfig()
	)

	a := &app{fs: fs, log: logrus.New()}
	a.log.SetOutput(stderr)

	cmd := &cobra.Command{
		Use:           "fat32",
		Short:         "inspect FAT32 disk images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config, err := readConfig(a.fs, configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			overrideFlags(cmd, flags, &config)
			a.config = config

			level, err := logrus.ParseLevel(config.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", config.LogLevel, err)
			}
			a.log.SetLevel(level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path of the YAML config file")
	cmd.PersistentFlags().StringVarP(&flags.Image, "image", "i", "", "Disk image to open")
	cmd.PersistentFlags().Uint64Var(&flags.SectorSize, "sector-size", flags.SectorSize, "Physical sector size of the image")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level (trace, debug, info, warning, error)")
	cmd.PersistentFlags().BoolVar(&flags.TaskHandle, "task-handle", false, "Serialize volume access through a single goroutine")

	cmd.AddCommand(infoCmd(a))
	cmd.AddCommand(lsCmd(a))
	cmd.AddCommand(catCmd(a))

	return cmd
}

func main() {
	if err := newCmd(afero.NewOsFs(), os.Stderr).Execute(); err != nil {
		logrus.Fatal(err)
	}
}
