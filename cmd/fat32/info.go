package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/aligator/gofat32"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func infoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "show the geometry and usage of the volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVolume(func(fsys *gofat32.FileSystem) error {
				stats, err := fsys.Stats()
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "label:\t%s\n", fsys.Label())
				fmt.Fprintf(w, "bytes per sector:\t%d\n", stats.BytesPerSector)
				fmt.Fprintf(w, "sectors per cluster:\t%d\n", stats.SectorsPerCluster)
				fmt.Fprintf(w, "cluster size:\t%s\n", humanize.IBytes(uint64(stats.ClusterSize)))
				fmt.Fprintf(w, "FATs:\t%d x %d sectors\n", stats.NumFATs, stats.SectorsPerFAT)
				fmt.Fprintf(w, "data start:\tsector %d\n", stats.DataStartSector)
				fmt.Fprintf(w, "root cluster:\t%d\n", stats.RootCluster)
				fmt.Fprintf(w, "clusters:\t%d (%d free, %d bad)\n", stats.ClusterCount, stats.FreeClusters, stats.BadClusters)
				fmt.Fprintf(w, "size:\t%s (%s free)\n", humanize.IBytes(stats.TotalBytes()), humanize.IBytes(stats.FreeBytes()))
				return w.Flush()
			})
		},
	}

	return cmd
}
