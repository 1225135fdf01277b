package main

import (
	"io"

	"github.com/aligator/gofat32"
	"github.com/spf13/cobra"
)

func catCmd(a *app) *cobra.Command {
	var offset int64

	cmd := &cobra.Command{
		Use:   "cat path...",
		Short: "print files of the volume",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withVolume(func(fsys *gofat32.FileSystem) error {
				for _, name := range args {
					entry, err := fsys.Open(name)
					if err != nil {
						return err
					}

					file, err := entry.File()
					if err != nil {
						return err
					}

					if _, err := file.Seek(offset, io.SeekStart); err != nil {
						return err
					}
					a.log.WithField("path", name).WithField("size", file.Size()).Debug("cat")

					_, err = io.Copy(cmd.OutOrStdout(), file)
					_ = file.Close()
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "Skip the first bytes of every file")

	return cmd
}
