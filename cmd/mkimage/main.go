// mkimage packs a directory of the host into a FAT32 disk image.
// It can be used to create test images for the driver:
//  go run ./cmd/mkimage --src testdata/tree --out testdata/fat32.img
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aligator/gofat32/mkfs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// maxClusters is the number of clusters a FAT32 volume can address.
const maxClusters = 0x0FFFFFF5

// build packs src into an image. The number of clusters is doubled until the tree fits.
func build(fs afero.Fs, src string, config mkfs.Config) (*mkfs.Image, error) {
	builder := mkfs.New(config)
	if err := mkfs.AddTree(fs, src, builder.Root()); err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", src, err)
	}

	for {
		img, err := builder.Build()
		if !errors.Is(err, mkfs.ErrFull) {
			return img, err
		}

		clusters := builder.Config().Clusters * 2
		if clusters > maxClusters {
			return nil, err
		}
		log.WithField("clusters", clusters).Debug("tree does not fit, growing the volume")
		builder = builder.WithClusters(clusters)
	}
}

func newCmd(fs afero.Fs) *cobra.Command {
	var (
		src     string
		out     string
		verbose bool
		config  mkfs.Config
	)

	cmd := &cobra.Command{
		Use:          "mkimage",
		Short:        "pack a directory into a FAT32 disk image",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}

			img, err := build(fs, src, config)
			if err != nil {
				return err
			}

			if err := afero.WriteFile(fs, out, img.Bytes(), 0644); err != nil {
				return fmt.Errorf("unable to write %s: %w", out, err)
			}
			log.Infof("Wrote %s (%d bytes)", out, len(img.Bytes()))
			return nil
		},
	}

	cmd.Flags().StringVar(&src, "src", ".", "Directory to pack")
	cmd.Flags().StringVarP(&out, "out", "o", "fat32.img", "Image file to write")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose execution")
	cmd.Flags().Uint16Var(&config.BytesPerSector, "bytes-per-sector", 512, "Logical sector size")
	cmd.Flags().Uint64Var(&config.PhysicalSectorSize, "sector-size", 512, "Physical sector size")
	cmd.Flags().Uint8Var(&config.SectorsPerCluster, "sectors-per-cluster", 1, "Sectors per cluster")
	cmd.Flags().Uint32Var(&config.Clusters, "clusters", 256, "Initial number of clusters")
	cmd.Flags().StringVar(&config.Label, "label", "", "Volume label")

	return cmd
}

func main() {
	if err := newCmd(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}
