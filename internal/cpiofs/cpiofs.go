// Package cpiofs exposes the contents of a CPIO archive as a read-only
// mount source. CPIO has no central directory and no random access, so
// the whole archive is decoded once at mount time and members are held
// in memory. An outer compression layer is picked by file extension:
// .gz, .zst and .lz4 are understood.
package cpiofs

import (
	"bufio"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"syscall"

	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/horazont/dragonhoard/internal/vfs"
)

type member struct {
	data  []byte
	mtime int64
	mode  uint32
}

type FileSystem struct {
	members  map[string]*member
	children map[string][]string
}

func New(archivePath string) (*FileSystem, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decompressed, closeDecompressor, err := decompressor(archivePath, bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer closeDecompressor()

	m := &FileSystem{
		members:  make(map[string]*member),
		children: make(map[string][]string),
	}
	if err := m.load(cpio.NewReader(decompressed)); err != nil {
		return nil, err
	}
	return m, nil
}

// decompressor wraps the raw archive stream in the decoder matching the
// file extension. Plain .cpio passes through unchanged.
func decompressor(archivePath string, raw io.Reader) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(archivePath, ".gz"):
		r, err := gzip.NewReader(raw)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { r.Close() }, nil
	case strings.HasSuffix(archivePath, ".zst"):
		r, err := zstd.NewReader(raw)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case strings.HasSuffix(archivePath, ".lz4"):
		return lz4.NewReader(raw), func() {}, nil
	default:
		return raw, func() {}, nil
	}
}

func (m *FileSystem) load(reader *cpio.Reader) error {
	dirs := map[string]map[string]bool{
		"": make(map[string]bool),
	}

	addParents := func(name string) {
		for name != "" {
			parent, base := splitPath(name)
			if dirs[parent] == nil {
				dirs[parent] = make(map[string]bool)
			}
			dirs[parent][base] = true
			name = parent
		}
	}

	for {
		hdr, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		name := normalize(hdr.Name)
		if name == "" {
			continue
		}

		switch {
		case hdr.Mode.IsDir():
			if dirs[name] == nil {
				dirs[name] = make(map[string]bool)
			}
			addParents(name)
		case hdr.Mode.IsRegular():
			data, err := io.ReadAll(reader)
			if err != nil {
				return err
			}
			m.members[name] = &member{
				data:  data,
				mtime: hdr.ModTime.Unix(),
				mode:  syscall.S_IFREG | uint32(hdr.Mode.Perm()),
			}
			addParents(name)
		default:
			// symlinks and special files are not exposed
		}
	}

	for dir, names := range dirs {
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		m.children[dir] = sorted
	}
	return nil
}

func (m *FileSystem) OpenRead(p string) (vfs.File, vfs.Error) {
	name := normalize(p)
	entry, ok := m.members[name]
	if !ok {
		if _, isDir := m.children[name]; isDir {
			return nil, vfs.ErrIsDir(p)
		}
		return nil, vfs.ErrNotFound(p)
	}

	return &file{data: entry.data}, nil
}

func (m *FileSystem) Stat(p string) (vfs.FileStat, vfs.Error) {
	name := normalize(p)
	if entry, ok := m.members[name]; ok {
		return &vfs.Attr{
			SizeV:  int64(len(entry.data)),
			MtimeV: entry.mtime,
			ModeV:  entry.mode,
		}, nil
	}
	if _, ok := m.children[name]; ok {
		return &vfs.Attr{
			ModeV: syscall.S_IFDIR | 0555,
			DirV:  true,
		}, nil
	}
	return nil, vfs.ErrNotFound(p)
}

func (m *FileSystem) ReadDir(p string) ([]vfs.DirEntry, vfs.Error) {
	name := normalize(p)
	names, ok := m.children[name]
	if !ok {
		if _, isFile := m.members[name]; isFile {
			return nil, vfs.ErrNotDir(p)
		}
		return nil, vfs.ErrNotFound(p)
	}

	entries := make([]vfs.DirEntry, 0, len(names))
	for _, childName := range names {
		child := childName
		if name != "" {
			child = name + "/" + childName
		}
		stat, err := m.Stat(child)
		if err != nil {
			continue
		}
		entries = append(entries, &vfs.Entry{
			NameV: childName,
			StatV: stat,
		})
	}
	return entries, nil
}

func (m *FileSystem) Close() vfs.Error {
	m.members = nil
	m.children = nil
	return nil
}

func normalize(p string) string {
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

func splitPath(p string) (dir string, base string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// file serves reads from the in-memory member data.
type file struct {
	data   []byte
	pos    int64
	closed bool
}

func (m *file) ReadBytes(dest []byte) (int, vfs.Error) {
	if m.closed {
		return 0, vfs.ErrClosed()
	}
	if m.pos >= int64(len(m.data)) {
		return 0, nil
	}

	n := copy(dest, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *file) WriteBytes(data []byte) (int, vfs.Error) {
	return 0, vfs.ErrReadOnly("cpio member")
}

func (m *file) Seek(position int64) vfs.Error {
	if m.closed {
		return vfs.ErrClosed()
	}
	if position < 0 {
		return vfs.NewError("seek to negative position", syscall.EINVAL)
	}

	m.pos = position
	return nil
}

func (m *file) Tell() int64 {
	return m.pos
}

func (m *file) Length() int64 {
	return int64(len(m.data))
}

func (m *file) EOF() bool {
	return m.pos >= int64(len(m.data))
}

func (m *file) Close() vfs.Error {
	m.closed = true
	return nil
}
