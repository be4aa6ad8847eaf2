// Package dirfs exposes a directory of the host filesystem as a mount
// source. It is the only source kind that supports writing; the engine
// uses one instance as its write directory.
package dirfs

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/horazont/dragonhoard/internal/vfs"
)

type FileSystem struct {
	root string
}

func New(root string) *FileSystem {
	return &FileSystem{
		root: root,
	}
}

// fullPath maps a virtual path onto the host filesystem. The virtual
// path is cleaned as an absolute path first so that it cannot climb out
// of the root.
func (m *FileSystem) fullPath(p string) string {
	p = path.Clean("/" + p)
	return filepath.Join(m.root, filepath.FromSlash(p))
}

func (m *FileSystem) OpenRead(p string) (vfs.File, vfs.Error) {
	f, err := os.Open(m.fullPath(p))
	if err != nil {
		return nil, vfs.WrapError(err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, vfs.WrapError(err)
	}
	if info.IsDir() {
		f.Close()
		return nil, vfs.ErrIsDir(p)
	}

	return &file{backend: f}, nil
}

func (m *FileSystem) OpenWrite(p string) (vfs.File, vfs.Error) {
	f, err := os.OpenFile(m.fullPath(p), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, vfs.WrapError(err)
	}

	return &file{backend: f}, nil
}

// OpenAppend opens without O_APPEND and seeks to the end instead, so
// that the handle keeps meaningful Tell and Seek semantics.
func (m *FileSystem) OpenAppend(p string) (vfs.File, vfs.Error) {
	f, err := os.OpenFile(m.fullPath(p), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, vfs.WrapError(err)
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, vfs.WrapError(err)
	}

	return &file{backend: f}, nil
}

func (m *FileSystem) Stat(p string) (vfs.FileStat, vfs.Error) {
	info, err := os.Stat(m.fullPath(p))
	if err != nil {
		return nil, vfs.WrapError(err)
	}

	return wrapFileInfo(info), nil
}

func (m *FileSystem) ReadDir(p string) ([]vfs.DirEntry, vfs.Error) {
	entries, err := os.ReadDir(m.fullPath(p))
	if err != nil {
		return nil, vfs.WrapError(err)
	}

	result := make([]vfs.DirEntry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// entry vanished between listing and stat
			continue
		}
		result = append(result, &dirEntry{
			name:    entry.Name(),
			wrapped: wrapFileInfo(info),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result, nil
}

// Mkdir creates the directory and any missing parents.
func (m *FileSystem) Mkdir(p string) vfs.Error {
	if err := os.MkdirAll(m.fullPath(p), 0755); err != nil {
		return vfs.WrapError(err)
	}
	return nil
}

func (m *FileSystem) Delete(p string) vfs.Error {
	if err := os.Remove(m.fullPath(p)); err != nil {
		return vfs.WrapError(err)
	}
	return nil
}

func (m *FileSystem) Close() vfs.Error {
	return nil
}

type dirEntry struct {
	name    string
	wrapped *fileStat
}

func (m *dirEntry) Name() string {
	return m.name
}

func (m *dirEntry) Stat() vfs.FileStat {
	return m.wrapped
}

type fileStat struct {
	backend syscall.Stat_t
}

func wrapFileInfo(v os.FileInfo) *fileStat {
	return &fileStat{*v.Sys().(*syscall.Stat_t)}
}

func (m *fileStat) Size() int64 {
	return m.backend.Size
}

func (m *fileStat) Mtime() int64 {
	return m.backend.Mtim.Sec
}

func (m *fileStat) Mode() uint32 {
	return m.backend.Mode
}

func (m *fileStat) IsDir() bool {
	return m.backend.Mode&syscall.S_IFMT == syscall.S_IFDIR
}

type file struct {
	backend *os.File
}

func (m *file) ReadBytes(dest []byte) (int, vfs.Error) {
	if m.backend == nil {
		return 0, vfs.ErrClosed()
	}

	n, err := m.backend.Read(dest)
	if err == io.EOF {
		return n, nil
	}
	if err != nil {
		return n, vfs.WrapError(err)
	}
	return n, nil
}

func (m *file) WriteBytes(data []byte) (int, vfs.Error) {
	if m.backend == nil {
		return 0, vfs.ErrClosed()
	}

	n, err := m.backend.Write(data)
	if err != nil {
		return n, vfs.WrapError(err)
	}
	return n, nil
}

func (m *file) Seek(position int64) vfs.Error {
	if m.backend == nil {
		return vfs.ErrClosed()
	}

	if _, err := m.backend.Seek(position, io.SeekStart); err != nil {
		return vfs.WrapError(err)
	}
	return nil
}

func (m *file) Tell() int64 {
	if m.backend == nil {
		return 0
	}

	pos, err := m.backend.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return pos
}

func (m *file) Length() int64 {
	if m.backend == nil {
		return 0
	}

	info, err := m.backend.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (m *file) EOF() bool {
	return m.Tell() >= m.Length()
}

func (m *file) Close() vfs.Error {
	if m.backend == nil {
		return nil
	}

	err := m.backend.Close()
	m.backend = nil
	if err != nil {
		return vfs.WrapError(err)
	}
	return nil
}
