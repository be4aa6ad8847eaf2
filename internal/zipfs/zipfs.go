// Package zipfs exposes the contents of a ZIP archive as a read-only
// mount source. The archive file is mapped into memory once at mount
// time; member handles decompress on the fly and support backward seeks
// by reopening the member and discarding bytes.
package zipfs

import (
	"bytes"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"syscall"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zip"

	"github.com/horazont/dragonhoard/internal/vfs"
)

type FileSystem struct {
	archive  *os.File
	data     mmap.MMap
	files    map[string]*zip.File
	children map[string][]string
}

func New(archivePath string) (*FileSystem, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}

	m := &FileSystem{
		archive:  f,
		data:     data,
		files:    make(map[string]*zip.File),
		children: make(map[string][]string),
	}
	m.index(reader)
	return m, nil
}

// index builds the member and directory tables. Explicit directory
// entries and directories that only exist as member path prefixes are
// treated alike.
func (m *FileSystem) index(reader *zip.Reader) {
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

	for _, zf := range reader.File {
		name := normalize(zf.Name)
		if name == "" {
			continue
		}
		if strings.HasSuffix(zf.Name, "/") {
			if dirs[name] == nil {
				dirs[name] = make(map[string]bool)
			}
			addParents(name)
			continue
		}
		m.files[name] = zf
		addParents(name)
	}

	for dir, names := range dirs {
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		m.children[dir] = sorted
	}
}

func (m *FileSystem) OpenRead(p string) (vfs.File, vfs.Error) {
	name := normalize(p)
	zf, ok := m.files[name]
	if !ok {
		if _, isDir := m.children[name]; isDir {
			return nil, vfs.ErrIsDir(p)
		}
		return nil, vfs.ErrNotFound(p)
	}

	rc, err := zf.Open()
	if err != nil {
		return nil, vfs.WrapError(err)
	}

	return &file{
		member: zf,
		rc:     rc,
		length: int64(zf.UncompressedSize64),
	}, nil
}

func (m *FileSystem) Stat(p string) (vfs.FileStat, vfs.Error) {
	name := normalize(p)
	if zf, ok := m.files[name]; ok {
		return memberStat(zf), nil
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
		if _, isFile := m.files[name]; isFile {
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
	if m.archive == nil {
		return nil
	}

	unmapErr := m.data.Unmap()
	closeErr := m.archive.Close()
	m.archive = nil
	m.data = nil

	if unmapErr != nil {
		return vfs.WrapError(unmapErr)
	}
	if closeErr != nil {
		return vfs.WrapError(closeErr)
	}
	return nil
}

func memberStat(zf *zip.File) vfs.FileStat {
	mode := uint32(zf.Mode().Perm())
	if mode == 0 {
		mode = 0444
	}
	return &vfs.Attr{
		SizeV:  int64(zf.UncompressedSize64),
		MtimeV: zf.Modified.Unix(),
		ModeV:  syscall.S_IFREG | mode,
	}
}

func normalize(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

func splitPath(p string) (dir string, base string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// file reads one archive member. Decompression is sequential; a seek to
// an earlier position reopens the member and discards bytes up to the
// target.
type file struct {
	member *zip.File
	rc     io.ReadCloser
	pos    int64
	length int64
	closed bool
}

func (m *file) ReadBytes(dest []byte) (int, vfs.Error) {
	if m.closed {
		return 0, vfs.ErrClosed()
	}
	if m.pos >= m.length {
		return 0, nil
	}

	n, err := m.rc.Read(dest)
	m.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, vfs.WrapError(err)
	}
	return n, nil
}

func (m *file) WriteBytes(data []byte) (int, vfs.Error) {
	return 0, vfs.ErrReadOnly(m.member.Name)
}

func (m *file) Seek(position int64) vfs.Error {
	if m.closed {
		return vfs.ErrClosed()
	}
	if position < 0 {
		return vfs.NewError("seek to negative position", syscall.EINVAL)
	}

	if position < m.pos {
		rc, err := m.member.Open()
		if err != nil {
			return vfs.WrapError(err)
		}
		m.rc.Close()
		m.rc = rc
		m.pos = 0
	}

	if position > m.pos {
		discarded, err := io.CopyN(io.Discard, m.rc, position-m.pos)
		m.pos += discarded
		if err != nil && err != io.EOF {
			return vfs.WrapError(err)
		}
	}
	return nil
}

func (m *file) Tell() int64 {
	return m.pos
}

func (m *file) Length() int64 {
	return m.length
}

func (m *file) EOF() bool {
	return m.pos >= m.length
}

func (m *file) Close() vfs.Error {
	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.rc.Close(); err != nil {
		return vfs.WrapError(err)
	}
	return nil
}
