package stream

import "github.com/horazont/dragonhoard/internal/vfs"

// handle owns exactly one open vfs.File. It exists to make the close
// exactly-once guarantee explicit: whatever happens to the stream on top,
// the file is released through here and never twice.
type handle struct {
	file vfs.File
}

func (m *handle) acquire(file vfs.File) error {
	if file == nil {
		return ErrInvalidHandle
	}
	m.file = file
	return nil
}

// reset closes the currently owned file, if any, and takes ownership of
// the new one. Used by reopen-in-place.
func (m *handle) reset(file vfs.File) error {
	m.close()
	return m.acquire(file)
}

func (m *handle) open() bool {
	return m.file != nil
}

func (m *handle) length() int64 {
	if m.file == nil {
		return 0
	}
	return m.file.Length()
}

// close is idempotent. Closing an already-closed handle is a no-op.
func (m *handle) close() vfs.Error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}
