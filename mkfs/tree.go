package mkfs

import (
	"path/filepath"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/spf13/afero"
)

// AddTree adds the content of the directory path of fs to dir.
// Only regular files and directories are added, modification times are kept.
func AddTree(fs afero.Fs, path string, dir *Node) error {
	infos, err := afero.ReadDir(fs, path)
	if err != nil {
		return checkpoint.From(err)
	}

	for _, info := range infos {
		name := filepath.Join(path, info.Name())
		switch {
		case info.IsDir():
			sub := dir.AddDir(info.Name())
			sub.ModTime = info.ModTime()
			if err := AddTree(fs, name, sub); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			data, err := afero.ReadFile(fs, name)
			if err != nil {
				return checkpoint.From(err)
			}
			dir.AddFile(info.Name(), data).ModTime = info.ModTime()
		}
	}
	return nil
}

// WithClusters returns a builder for the same tree with another number of clusters.
func (b *Builder) WithClusters(clusters uint32) *Builder {
	config := b.config
	config.Clusters = clusters
	return &Builder{config: config, root: b.root}
}

// Config returns the configuration including the defaults.
func (b *Builder) Config() Config {
	return b.config
}
