// Package frontend exposes the engine's search path as a read-only FUSE
// filesystem, so that mounted archives can be browsed with ordinary
// tools.
package frontend

import (
	"sync"

	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"

	"github.com/horazont/dragonhoard/internal/engine"
	"github.com/horazont/dragonhoard/internal/vfs"
)

type HoardFS struct {
	pathfs.FileSystem
}

func NewHoardFS() *HoardFS {
	return &HoardFS{
		FileSystem: pathfs.NewDefaultFileSystem(),
	}
}

func (m *HoardFS) GetAttr(path string, context *fuse.Context) (*fuse.Attr, fuse.Status) {
	stat, err := engine.Stat(path)
	if err != nil {
		return nil, fuse.Status(err.Errno())
	}

	return &fuse.Attr{
		Mode:  stat.Mode(),
		Size:  uint64(stat.Size()),
		Mtime: uint64(stat.Mtime()),
		Owner: fuse.Owner{Uid: context.Owner.Uid, Gid: context.Owner.Gid},
	}, fuse.OK
}

func (m *HoardFS) OpenDir(path string, context *fuse.Context) (stream []fuse.DirEntry, code fuse.Status) {
	entries, err := engine.ReadDir(path)
	if err != nil {
		return nil, fuse.Status(err.Errno())
	}

	stream = make([]fuse.DirEntry, len(entries))
	for i, entry := range entries {
		stream[i] = fuse.DirEntry{
			Name: entry.Name(),
			Mode: entry.Stat().Mode(),
		}
	}
	return stream, fuse.OK
}

func (m *HoardFS) Open(path string, flags uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	if flags&fuse.O_ANYWRITE != 0 {
		return nil, fuse.EROFS
	}

	file, err := engine.OpenRead(path)
	if err != nil {
		return nil, fuse.Status(err.Errno())
	}

	return &hoardFile{
		File:   nodefs.NewDefaultFile(),
		handle: &offsetReader{file: file},
	}, fuse.OK
}

type hoardFile struct {
	nodefs.File
	handle *offsetReader
}

func (m *hoardFile) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	n, err := m.handle.readAt(dest, off)
	if err != nil {
		return fuse.ReadResultData(dest[:n]), fuse.Status(err.Errno())
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (m *hoardFile) Release() {
	m.handle.close()
}

func (m *hoardFile) GetAttr(out *fuse.Attr) fuse.Status {
	out.Mode = fuse.S_IFREG | 0444
	out.Size = uint64(m.handle.length())
	return fuse.OK
}

// offsetReader maps FUSE's offset reads onto the cursor-based handle.
// FUSE may issue reads from several kernel threads; the cursor needs a
// lock.
type offsetReader struct {
	file vfs.File
	lock sync.Mutex
}

func (m *offsetReader) readAt(dest []byte, off int64) (int, vfs.Error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := m.file.Seek(off); err != nil {
		return 0, err
	}

	total := 0
	for total < len(dest) && !m.file.EOF() {
		n, err := m.file.ReadBytes(dest[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func (m *offsetReader) length() int64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.file.Length()
}

func (m *offsetReader) close() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.file.Close()
}
