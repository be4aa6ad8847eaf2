package engine

import (
	"sort"
	"syscall"

	"github.com/horazont/dragonhoard/internal/dirfs"
	"github.com/horazont/dragonhoard/internal/vfs"
)

// snapshot copies the mount list and write directory under the lock so
// that lookups can run without holding it across source I/O.
func snapshot() ([]*mount, *dirfs.FileSystem, vfs.Error) {
	mu.Lock()
	defer mu.Unlock()

	if state == nil {
		return nil, nil, ErrNotInitialized
	}

	mounts := make([]*mount, len(state.mounts))
	copy(mounts, state.mounts)
	return mounts, state.writeDir, nil
}

// OpenRead searches the mounts in order and opens the first file found
// under the virtual path.
func OpenRead(p string) (vfs.File, vfs.Error) {
	mounts, _, err := snapshot()
	if err != nil {
		return nil, err
	}

	name := normalize(p)
	for _, mnt := range mounts {
		inner, ok := mnt.translate(name)
		if !ok {
			continue
		}

		file, err := mnt.src.OpenRead(inner)
		if err == nil {
			return file, nil
		}
		if !vfs.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, vfs.ErrNotFound(p)
}

// OpenWrite creates or truncates a file in the write directory.
func OpenWrite(p string) (vfs.File, vfs.Error) {
	_, writeDir, err := snapshot()
	if err != nil {
		return nil, err
	}
	if writeDir == nil {
		return nil, ErrNoWriteDir
	}
	return writeDir.OpenWrite(normalize(p))
}

// OpenAppend opens a file in the write directory positioned at its end.
func OpenAppend(p string) (vfs.File, vfs.Error) {
	_, writeDir, err := snapshot()
	if err != nil {
		return nil, err
	}
	if writeDir == nil {
		return nil, ErrNoWriteDir
	}
	return writeDir.OpenAppend(normalize(p))
}

// Open dispatches to the engine-open primitive matching the mode.
func Open(p string, mode vfs.Mode) (vfs.File, vfs.Error) {
	switch mode {
	case vfs.Read:
		return OpenRead(p)
	case vfs.Write:
		return OpenWrite(p)
	case vfs.Append:
		return OpenAppend(p)
	default:
		return nil, vfs.NewError("invalid open mode", syscall.EINVAL)
	}
}

// Stat reports the attributes of the first match on the search path.
// Ancestor directories of mount points exist as virtual directories.
func Stat(p string) (vfs.FileStat, vfs.Error) {
	mounts, _, err := snapshot()
	if err != nil {
		return nil, err
	}

	name := normalize(p)
	for _, mnt := range mounts {
		if inner, ok := mnt.translate(name); ok {
			if stat, err := mnt.src.Stat(inner); err == nil {
				return stat, nil
			}
		}
	}

	for _, mnt := range mounts {
		if mnt.covers(name) {
			return &vfs.Attr{
				ModeV: syscall.S_IFDIR | 0555,
				DirV:  true,
			}, nil
		}
	}
	return nil, vfs.ErrNotFound(p)
}

// Exists reports whether the virtual path resolves on the search path.
func Exists(p string) bool {
	_, err := Stat(p)
	return err == nil
}

// IsDirectory reports whether the virtual path is a directory.
func IsDirectory(p string) bool {
	stat, err := Stat(p)
	return err == nil && stat.IsDir()
}

// RealDir reports the source path of the mount that serves the virtual
// path, mirroring the search order used by OpenRead.
func RealDir(p string) (string, vfs.Error) {
	mounts, _, err := snapshot()
	if err != nil {
		return "", err
	}

	name := normalize(p)
	for _, mnt := range mounts {
		if inner, ok := mnt.translate(name); ok {
			if _, err := mnt.src.Stat(inner); err == nil {
				return mnt.source, nil
			}
		}
	}
	return "", vfs.ErrNotFound(p)
}

// ReadDir merges the directory listings of all mounts that contain the
// virtual path. On name collisions the earlier mount wins. Mount points
// nested below the path appear as virtual directories.
func ReadDir(p string) ([]vfs.DirEntry, vfs.Error) {
	mounts, _, err := snapshot()
	if err != nil {
		return nil, err
	}

	name := normalize(p)
	seen := make(map[string]bool)
	var entries []vfs.DirEntry
	found := false

	for _, mnt := range mounts {
		if inner, ok := mnt.translate(name); ok {
			children, err := mnt.src.ReadDir(inner)
			if err == nil {
				found = true
				for _, entry := range children {
					if !seen[entry.Name()] {
						seen[entry.Name()] = true
						entries = append(entries, entry)
					}
				}
			}
		}

		if mnt.covers(name) {
			found = true
			child := mnt.childAt(name)
			if child != "" && !seen[child] {
				seen[child] = true
				entries = append(entries, &vfs.Entry{
					NameV: child,
					StatV: &vfs.Attr{
						ModeV: syscall.S_IFDIR | 0555,
						DirV:  true,
					},
				})
			}
		}
	}

	if !found {
		return nil, vfs.ErrNotFound(p)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

// Enumerate lists the names in a virtual directory, merged across all
// mounts, sorted and without duplicates.
func Enumerate(p string) ([]string, vfs.Error) {
	entries, err := ReadDir(p)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names, nil
}

// Mkdir creates a directory, with parents, in the write directory.
func Mkdir(p string) vfs.Error {
	_, writeDir, err := snapshot()
	if err != nil {
		return err
	}
	if writeDir == nil {
		return ErrNoWriteDir
	}
	return writeDir.Mkdir(normalize(p))
}

// Delete removes a file or empty directory from the write directory.
func Delete(p string) vfs.Error {
	_, writeDir, err := snapshot()
	if err != nil {
		return err
	}
	if writeDir == nil {
		return ErrNoWriteDir
	}
	return writeDir.Delete(normalize(p))
}
