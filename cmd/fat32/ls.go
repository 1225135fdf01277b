package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/aligator/gofat32"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func lsCmd(a *app) *cobra.Command {
	var (
		long      bool
		human     bool
		recursive bool
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "list a directory of the volume",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}

			return a.withVolume(func(fsys *gofat32.FileSystem) error {
				l := lister{out: cmd.OutOrStdout(), long: long, human: human, all: all}
				if recursive {
					return l.walk(fsys.Afero(), dir)
				}

				entry, err := fsys.Open(dir)
				if err != nil {
					return err
				}
				if !entry.IsDir() {
					l.print(entry.Name(), entry.FileInfo())
					return nil
				}

				d, err := entry.Dir()
				if err != nil {
					return err
				}
				entries, err := d.ReadAll()
				if err != nil {
					return err
				}
				for _, e := range entries {
					l.print(e.Name(), e.FileInfo())
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show attributes, size and modification time")
	cmd.Flags().BoolVar(&human, "human", false, "Show sizes human readable")
	cmd.Flags().BoolVarP(&recursive, "recursive", "R", false, "List subdirectories recursively")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show hidden entries")

	return cmd
}

type lister struct {
	out   io.Writer
	long  bool
	human bool
	all   bool
}

func (l lister) hidden(info os.FileInfo) bool {
	entry, ok := info.Sys().(*gofat32.Entry)
	return ok && entry.Attributes().Has(gofat32.AttrHidden)
}

func (l lister) print(name string, info os.FileInfo) {
	if !l.all && l.hidden(info) {
		return
	}
	if !l.long {
		fmt.Fprintln(l.out, name)
		return
	}

	size := strconv.FormatInt(info.Size(), 10)
	if l.human {
		size = humanize.IBytes(uint64(info.Size()))
	}

	attributes := "------"
	if entry, ok := info.Sys().(*gofat32.Entry); ok {
		attributes = entry.Attributes().String()
	}
	fmt.Fprintf(l.out, "%s %10s %s %s\n", attributes, size, info.ModTime().Format("2006-01-02 15:04"), name)
}

// walk prints all entries below root with their full path.
func (l lister) walk(fs afero.Fs, root string) error {
	var paths []string
	infos := make(map[string]os.FileInfo)
	err := afero.Walk(fs, path.Clean("/"+root), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !l.all && l.hidden(info) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		paths = append(paths, p)
		infos[p] = info
		return nil
	})
	if err != nil {
		return err
	}

	sort.Strings(paths)
	for _, p := range paths {
		l.print(p, infos[p])
	}
	return nil
}
