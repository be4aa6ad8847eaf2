// Package engine is the virtual filesystem engine: a search path of
// mount sources (directories, ZIP archives, CPIO archives) plus one
// write directory. All state is process-wide and guarded by a mutex;
// the embedding application initializes it explicitly with Init and
// tears it down with Deinit. Every operation fails cleanly when the
// engine has not been initialized.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"syscall"

	"github.com/horazont/dragonhoard/internal/cpiofs"
	"github.com/horazont/dragonhoard/internal/dirfs"
	"github.com/horazont/dragonhoard/internal/vfs"
	"github.com/horazont/dragonhoard/internal/zipfs"
)

var (
	ErrInitialized    = errors.New("engine: already initialized")
	ErrNotInitialized = vfs.NewError("engine: not initialized", syscall.EIO)
	ErrNoWriteDir     = vfs.NewError("engine: no write directory set", syscall.EROFS)
)

type mount struct {
	source string
	point  string
	src    vfs.Source
}

type engineState struct {
	mounts       []*mount
	writeDir     *dirfs.FileSystem
	writeDirPath string
}

var (
	mu    sync.Mutex
	state *engineState
)

// Init prepares the engine for use. Calling Init twice without an
// intervening Deinit is an error.
func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if state != nil {
		return ErrInitialized
	}
	state = &engineState{}
	return nil
}

// Deinit closes every mount source and discards the write directory.
// Streams must be closed before Deinit; archive handles read from
// resources owned by their source.
func Deinit() error {
	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		return ErrNotInitialized
	}

	var firstErr error
	for _, mnt := range state.mounts {
		if err := mnt.src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	state = nil
	return firstErr
}

func IsInit() bool {
	mu.Lock()
	defer mu.Unlock()
	return state != nil
}

// Mount adds a source to the search path. source is a host path naming
// either a directory or an archive; point is the virtual directory the
// source appears under ("" or "/" for the root). With appendToPath the
// source is searched after existing mounts, otherwise before them.
func Mount(source string, point string, appendToPath bool) error {
	src, err := newSource(source)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		src.Close()
		return ErrNotInitialized
	}

	mnt := &mount{
		source: source,
		point:  normalize(point),
		src:    src,
	}
	if appendToPath {
		state.mounts = append(state.mounts, mnt)
	} else {
		state.mounts = append([]*mount{mnt}, state.mounts...)
	}
	return nil
}

// Unmount removes the mount added for the given source path.
func Unmount(source string) error {
	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		return ErrNotInitialized
	}

	for i, mnt := range state.mounts {
		if mnt.source == source {
			state.mounts = append(state.mounts[:i], state.mounts[i+1:]...)
			if err := mnt.src.Close(); err != nil {
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("engine: %s is not mounted", source)
}

// SearchPath lists the source paths of all mounts in search order.
func SearchPath() []string {
	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		return nil
	}

	result := make([]string, len(state.mounts))
	for i, mnt := range state.mounts {
		result[i] = mnt.source
	}
	return result
}

// MountPoint reports the virtual directory a source is mounted at.
func MountPoint(source string) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		return "", ErrNotInitialized
	}

	for _, mnt := range state.mounts {
		if mnt.source == source {
			return "/" + mnt.point, nil
		}
	}
	return "", fmt.Errorf("engine: %s is not mounted", source)
}

// SetWriteDir selects the host directory that receives all writes. An
// empty dir disables writing.
func SetWriteDir(dir string) error {
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("engine: write dir %s is not a directory", dir)
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		return ErrNotInitialized
	}

	if dir == "" {
		state.writeDir = nil
		state.writeDirPath = ""
		return nil
	}
	state.writeDir = dirfs.New(dir)
	state.writeDirPath = dir
	return nil
}

// WriteDir reports the currently configured write directory, "" if none.
func WriteDir() string {
	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		return ""
	}
	return state.writeDirPath
}

// newSource creates the mount source matching the host path: directories
// mount directly, files mount by archive type.
func newSource(source string) (vfs.Source, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return dirfs.New(source), nil
	}

	switch {
	case strings.HasSuffix(source, ".zip"):
		return zipfs.New(source)
	case strings.HasSuffix(source, ".cpio"),
		strings.HasSuffix(source, ".cpio.gz"),
		strings.HasSuffix(source, ".cpio.zst"),
		strings.HasSuffix(source, ".cpio.lz4"):
		return cpiofs.New(source)
	default:
		return nil, fmt.Errorf("engine: %s: unsupported archive type", source)
	}
}

// normalize turns a virtual path into its canonical rooted-relative
// form: cleaned, slash-separated, no leading slash; "" is the root.
func normalize(p string) string {
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// translate maps a virtual path into a mount. ok is false when the path
// lies outside the mount point.
func (m *mount) translate(p string) (string, bool) {
	if m.point == "" {
		return p, true
	}
	if p == m.point {
		return "", true
	}
	if strings.HasPrefix(p, m.point+"/") {
		return p[len(m.point)+1:], true
	}
	return "", false
}

// covers reports whether the normalized path is an ancestor of the mount
// point, making the path a virtual directory.
func (m *mount) covers(p string) bool {
	if m.point == "" {
		return false
	}
	return p == "" || strings.HasPrefix(m.point, p+"/")
}

// childAt reports the next component of the mount point below the given
// ancestor directory.
func (m *mount) childAt(p string) string {
	rest := m.point
	if p != "" {
		rest = strings.TrimPrefix(m.point, p+"/")
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx]
	}
	return rest
}
