package stream

import (
	"syscall"

	"github.com/horazont/dragonhoard/internal/vfs"
)

// mockFile is a memory-backed vfs.File that counts engine calls, so that
// tests can assert how much I/O the buffer layer actually issued.
type mockFile struct {
	Data []byte
	pos  int64

	ReadCalls  int
	WriteCalls int
	SeekCalls  int
	CloseCalls int

	// AcceptAtMost caps how many bytes one WriteBytes call accepts;
	// 0 means unlimited. Used to simulate a full or broken medium.
	AcceptAtMost int

	FailReads bool
}

func newMockFile(data []byte) *mockFile {
	return &mockFile{Data: data}
}

func (m *mockFile) ReadBytes(dest []byte) (int, vfs.Error) {
	m.ReadCalls++
	if m.FailReads {
		return 0, vfs.NewError("injected read failure", syscall.EIO)
	}
	if m.pos >= int64(len(m.Data)) {
		return 0, nil
	}

	n := copy(dest, m.Data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *mockFile) WriteBytes(data []byte) (int, vfs.Error) {
	m.WriteCalls++

	n := len(data)
	if m.AcceptAtMost > 0 && n > m.AcceptAtMost {
		n = m.AcceptAtMost
	}

	end := m.pos + int64(n)
	if end > int64(len(m.Data)) {
		grown := make([]byte, end)
		copy(grown, m.Data)
		m.Data = grown
	}
	copy(m.Data[m.pos:end], data[:n])
	m.pos = end
	return n, nil
}

func (m *mockFile) Seek(position int64) vfs.Error {
	m.SeekCalls++
	if position < 0 {
		return vfs.NewError("seek to negative position", syscall.EINVAL)
	}
	m.pos = position
	return nil
}

func (m *mockFile) Tell() int64 {
	return m.pos
}

func (m *mockFile) Length() int64 {
	return int64(len(m.Data))
}

func (m *mockFile) EOF() bool {
	return m.pos >= int64(len(m.Data))
}

func (m *mockFile) Close() vfs.Error {
	m.CloseCalls++
	return nil
}
