package gofat32

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"
	"time"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/spf13/afero"
)

// Fs provides a mounted volume as read only afero.Fs.
// Every modifying operation fails with ErrReadOnly.
type Fs struct {
	fsys *FileSystem
}

// Afero returns the volume as afero.Fs.
func (fsys *FileSystem) Afero() afero.Fs {
	return &Fs{fsys: fsys}
}

// IOFS returns the volume as fs.FS.
func (fsys *FileSystem) IOFS() fs.FS {
	return afero.IOFS{Fs: fsys.Afero()}
}

// pathError converts errors of the driver to the errors the os package would return.
func pathError(op, name string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		err = os.ErrNotExist
	case errors.Is(err, ErrNotADirectory):
		err = syscall.ENOTDIR
	case errors.Is(err, ErrReadOnly):
		err = ErrReadOnly
	case errors.Is(err, ErrClosed):
		err = os.ErrClosed
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

func (f *Fs) Create(name string) (afero.File, error) {
	return nil, pathError("create", name, ErrReadOnly)
}

func (f *Fs) Mkdir(name string, perm os.FileMode) error {
	return pathError("mkdir", name, ErrReadOnly)
}

func (f *Fs) MkdirAll(path string, perm os.FileMode) error {
	return pathError("mkdir", path, ErrReadOnly)
}

func (f *Fs) Open(name string) (afero.File, error) {
	entry, err := f.fsys.Open(name)
	if err != nil {
		return nil, pathError("open", name, err)
	}

	file := &fsFile{fsys: f.fsys, path: name, entry: entry}
	if entry.IsDir() {
		file.dir, err = entry.Dir()
	} else {
		file.file, err = entry.File()
	}
	if err != nil {
		return nil, pathError("open", name, err)
	}
	return file, nil
}

// OpenFile only supports opening files for reading.
func (f *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, pathError("open", name, ErrReadOnly)
	}
	return f.Open(name)
}

func (f *Fs) Remove(name string) error {
	return pathError("remove", name, ErrReadOnly)
}

func (f *Fs) RemoveAll(path string) error {
	return pathError("remove", path, ErrReadOnly)
}

func (f *Fs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrReadOnly}
}

func (f *Fs) Stat(name string) (os.FileInfo, error) {
	entry, err := f.fsys.Open(name)
	if err != nil {
		return nil, pathError("stat", name, err)
	}
	return entry.FileInfo(), nil
}

func (f *Fs) Name() string {
	return "gofat32"
}

func (f *Fs) Chmod(name string, mode os.FileMode) error {
	return pathError("chmod", name, ErrReadOnly)
}

func (f *Fs) Chown(name string, uid, gid int) error {
	return pathError("chown", name, ErrReadOnly)
}

func (f *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return pathError("chtimes", name, ErrReadOnly)
}

// fsFile is an opened file or directory of Fs. Exactly one of file and dir is set.
type fsFile struct {
	fsys  *FileSystem
	path  string
	entry *Entry

	file *File
	dir  *Dir
	it   *DirIterator
}

func (f *fsFile) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	f.it = nil
	return nil
}

func (f *fsFile) Read(p []byte) (int, error) {
	if f.dir != nil {
		return 0, pathError("read", f.path, syscall.EISDIR)
	}
	n, err := f.file.Read(p)
	if err == ErrClosed {
		return n, pathError("read", f.path, err)
	}
	return n, err
}

func (f *fsFile) ReadAt(p []byte, off int64) (int, error) {
	if f.dir != nil {
		return 0, pathError("read", f.path, syscall.EISDIR)
	}
	n, err := f.file.ReadAt(p, off)
	if err == ErrClosed {
		return n, pathError("read", f.path, err)
	}
	return n, err
}

// Seek on a directory only supports rewinding to the first entry.
func (f *fsFile) Seek(offset int64, whence int) (int64, error) {
	if f.dir != nil {
		if offset != 0 || whence != io.SeekStart {
			return 0, pathError("seek", f.path, syscall.EINVAL)
		}
		f.it = nil
		return 0, nil
	}
	return f.file.Seek(offset, whence)
}

func (f *fsFile) Write(p []byte) (int, error) {
	return 0, pathError("write", f.path, ErrReadOnly)
}

func (f *fsFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, pathError("write", f.path, ErrReadOnly)
}

func (f *fsFile) Name() string {
	return f.path
}

// Readdir reads the contents of a directory like os.File.Readdir:
// For count > 0 at most count entries are returned and io.EOF if there are none left.
// For count <= 0 all remaining entries are returned.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *fsFile) Readdir(count int) ([]os.FileInfo, error) {
	if f.dir == nil {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}
	if f.it == nil {
		f.it = f.dir.Entries()
	}

	var infos []os.FileInfo
	for count <= 0 || len(infos) < count {
		entry, err := f.it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return infos, err
		}
		infos = append(infos, entry.FileInfo())
	}

	if count > 0 && len(infos) == 0 {
		return infos, io.EOF
	}
	return infos, nil
}

func (f *fsFile) Readdirnames(count int) ([]string, error) {
	infos, err := f.Readdir(count)

	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, err
}

func (f *fsFile) Stat() (os.FileInfo, error) {
	return f.entry.FileInfo(), nil
}

func (f *fsFile) Sync() error {
	return f.fsys.Sync()
}

func (f *fsFile) Truncate(size int64) error {
	return pathError("truncate", f.path, ErrReadOnly)
}

func (f *fsFile) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}
