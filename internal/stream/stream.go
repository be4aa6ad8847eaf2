// Package stream turns the opaque file handles of the virtual filesystem
// engine into buffered streams. InputStream, OutputStream and Stream
// compose a handle owner with a fileBuffer; they implement the usual io
// interfaces, so fmt.Fprintf and friends work on them directly.
//
// A stream instance must not be used from more than one goroutine at a
// time. I/O failures other than end-of-data put the stream into a sticky
// failed state observable through Err(); it has to be reopened before
// further use.
package stream

import (
	"io"
	"syscall"

	"github.com/horazont/dragonhoard/internal/engine"
	"github.com/horazont/dragonhoard/internal/vfs"
)

// InputStream reads a virtual file sequentially through a fixed-size
// buffer. The zero value is an unopened stream; use Open to attach it to
// a path.
type InputStream struct {
	handle handle
	buf    *fileBuffer
	err    error
}

// OpenInput opens the named virtual file for reading through the engine's
// search path.
func OpenInput(path string) (*InputStream, error) {
	s := &InputStream{}
	if err := s.Open(path); err != nil {
		return nil, err
	}
	return s, nil
}

// NewInput wraps an already-open handle. The stream takes ownership of
// the handle and closes it on Close.
func NewInput(file vfs.File) (*InputStream, error) {
	s := &InputStream{}
	if err := s.attach(file); err != nil {
		return nil, err
	}
	return s, nil
}

// Open closes any previously attached handle, then attaches the stream to
// the named file. Reopen always goes through close first.
func (m *InputStream) Open(path string) error {
	if err := m.Close(); err != nil {
		return err
	}

	file, err := engine.OpenRead(path)
	if err != nil {
		return err
	}
	return m.attach(file)
}

// attach validates and takes ownership of the handle before the buffer
// that wraps it is constructed. The ordering matters: the buffer must
// never exist around an unvalidated handle.
func (m *InputStream) attach(file vfs.File) error {
	if err := m.handle.reset(file); err != nil {
		return err
	}
	m.buf = newFileBuffer(file, DefaultBufferSize)
	m.err = nil
	return nil
}

// Read implements io.Reader. End of data is reported as io.EOF and does
// not fail the stream.
func (m *InputStream) Read(dest []byte) (int, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	n, err := m.buf.read(dest)
	if err != nil && err != io.EOF {
		m.err = err
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (m *InputStream) ReadByte() (byte, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	c, err := m.buf.readByte()
	if err != nil && err != io.EOF {
		m.err = err
	}
	return c, err
}

// Seek implements io.Seeker. Seeking discards the buffered read-ahead and
// repositions the logical stream.
func (m *InputStream) Seek(offset int64, whence int) (int64, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	pos, err := m.buf.seek(offset, whence, true, false)
	if err != nil && err != errWhence {
		m.err = err
	}
	return pos, err
}

// Length reports the total byte length of the underlying file.
func (m *InputStream) Length() int64 {
	return m.handle.length()
}

// Err reports the sticky failure state of the stream, nil while healthy.
func (m *InputStream) Err() error {
	return m.err
}

// Close releases the handle. It is idempotent and safe on an unopened
// stream.
func (m *InputStream) Close() error {
	m.buf = nil
	if err := m.handle.close(); err != nil {
		return err
	}
	return nil
}

// OutputStream writes a virtual file through a fixed-size buffer. The
// zero value is an unopened stream.
type OutputStream struct {
	handle handle
	buf    *fileBuffer
	err    error
}

// OpenOutput opens the named file in the engine's write directory. mode
// must be vfs.Write (create or truncate) or vfs.Append.
func OpenOutput(path string, mode vfs.Mode) (*OutputStream, error) {
	s := &OutputStream{}
	if err := s.Open(path, mode); err != nil {
		return nil, err
	}
	return s, nil
}

// NewOutput wraps an already-open writable handle.
func NewOutput(file vfs.File) (*OutputStream, error) {
	s := &OutputStream{}
	if err := s.attach(file); err != nil {
		return nil, err
	}
	return s, nil
}

// Open closes any previously attached handle, flushing pending writes,
// then attaches the stream to the named file.
func (m *OutputStream) Open(path string, mode vfs.Mode) error {
	if err := m.Close(); err != nil {
		return err
	}

	file, err := openForWriting(path, mode)
	if err != nil {
		return err
	}
	return m.attach(file)
}

func (m *OutputStream) attach(file vfs.File) error {
	if err := m.handle.reset(file); err != nil {
		return err
	}
	m.buf = newFileBuffer(file, DefaultBufferSize)
	m.err = nil
	return nil
}

// Write implements io.Writer. Bytes are collected in the put-area and
// handed to the engine one buffer at a time.
func (m *OutputStream) Write(data []byte) (int, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	n, err := m.buf.write(data)
	if err != nil {
		m.err = err
	}
	return n, err
}

// WriteByte implements io.ByteWriter.
func (m *OutputStream) WriteByte(c byte) error {
	if m.buf == nil {
		return ErrNotOpen
	}
	if m.err != nil {
		return m.err
	}

	if err := m.buf.writeByte(c); err != nil {
		m.err = err
		return err
	}
	return nil
}

// WriteString implements io.StringWriter.
func (m *OutputStream) WriteString(s string) (int, error) {
	return m.Write([]byte(s))
}

// Sync flushes pending writes to the engine. Flush failures are surfaced
// here and fail the stream.
func (m *OutputStream) Sync() error {
	if m.buf == nil {
		return ErrNotOpen
	}
	if m.err != nil {
		return m.err
	}

	if err := m.buf.sync(); err != nil {
		m.err = err
		return err
	}
	return nil
}

// Seek implements io.Seeker. Pending writes are flushed first; the stream
// never discards unflushed bytes implicitly.
func (m *OutputStream) Seek(offset int64, whence int) (int64, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	if err := m.buf.flush(); err != nil {
		m.err = err
		return 0, err
	}

	pos, err := m.buf.seek(offset, whence, false, true)
	if err != nil && err != errWhence {
		m.err = err
	}
	return pos, err
}

// Length reports the total byte length of the underlying file, counting
// flushed bytes only.
func (m *OutputStream) Length() int64 {
	return m.handle.length()
}

// Err reports the sticky failure state of the stream, nil while healthy.
func (m *OutputStream) Err() error {
	return m.err
}

// Close flushes pending writes and releases the handle, in that order;
// the flush needs the handle still open. Close is idempotent. The flush
// failure, if any, takes precedence over a close failure.
func (m *OutputStream) Close() error {
	var flushErr error
	if m.buf != nil && m.handle.open() {
		flushErr = m.buf.sync()
	}
	m.buf = nil

	closeErr := m.handle.close()
	if flushErr != nil {
		m.err = flushErr
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}
	return nil
}

// Stream is the bidirectional variant: one handle serving both buffered
// reads and buffered writes. Reads and writes must not be interleaved
// without an intervening Seek or Sync.
type Stream struct {
	handle handle
	buf    *fileBuffer
	err    error
}

// OpenFile opens the named file with the given mode: vfs.Read through the
// search path, vfs.Write and vfs.Append through the write directory.
func OpenFile(path string, mode vfs.Mode) (*Stream, error) {
	s := &Stream{}
	if err := s.Open(path, mode); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFile wraps an already-open handle.
func NewFile(file vfs.File) (*Stream, error) {
	s := &Stream{}
	if err := s.attach(file); err != nil {
		return nil, err
	}
	return s, nil
}

// Open closes any previously attached handle, flushing pending writes,
// then attaches the stream to the named file.
func (m *Stream) Open(path string, mode vfs.Mode) error {
	if err := m.Close(); err != nil {
		return err
	}

	var file vfs.File
	var err error
	if mode == vfs.Read {
		file, err = engine.OpenRead(path)
	} else {
		file, err = openForWriting(path, mode)
	}
	if err != nil {
		return err
	}
	return m.attach(file)
}

func (m *Stream) attach(file vfs.File) error {
	if err := m.handle.reset(file); err != nil {
		return err
	}
	m.buf = newFileBuffer(file, DefaultBufferSize)
	m.err = nil
	return nil
}

// Read implements io.Reader.
func (m *Stream) Read(dest []byte) (int, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	n, err := m.buf.read(dest)
	if err != nil && err != io.EOF {
		m.err = err
	}
	return n, err
}

// ReadByte implements io.ByteReader.
func (m *Stream) ReadByte() (byte, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	c, err := m.buf.readByte()
	if err != nil && err != io.EOF {
		m.err = err
	}
	return c, err
}

// Write implements io.Writer.
func (m *Stream) Write(data []byte) (int, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	n, err := m.buf.write(data)
	if err != nil {
		m.err = err
	}
	return n, err
}

// WriteByte implements io.ByteWriter.
func (m *Stream) WriteByte(c byte) error {
	if m.buf == nil {
		return ErrNotOpen
	}
	if m.err != nil {
		return m.err
	}

	if err := m.buf.writeByte(c); err != nil {
		m.err = err
		return err
	}
	return nil
}

// WriteString implements io.StringWriter.
func (m *Stream) WriteString(s string) (int, error) {
	return m.Write([]byte(s))
}

// Sync flushes pending writes to the engine.
func (m *Stream) Sync() error {
	if m.buf == nil {
		return ErrNotOpen
	}
	if m.err != nil {
		return m.err
	}

	if err := m.buf.sync(); err != nil {
		m.err = err
		return err
	}
	return nil
}

// Seek implements io.Seeker. Pending writes are flushed first, then both
// buffer regions are invalidated at the new position.
func (m *Stream) Seek(offset int64, whence int) (int64, error) {
	if m.buf == nil {
		return 0, ErrNotOpen
	}
	if m.err != nil {
		return 0, m.err
	}

	if err := m.buf.flush(); err != nil {
		m.err = err
		return 0, err
	}

	pos, err := m.buf.seek(offset, whence, true, true)
	if err != nil && err != errWhence {
		m.err = err
	}
	return pos, err
}

// Length reports the total byte length of the underlying file.
func (m *Stream) Length() int64 {
	return m.handle.length()
}

// Err reports the sticky failure state of the stream, nil while healthy.
func (m *Stream) Err() error {
	return m.err
}

// Close flushes pending writes and releases the handle. Idempotent.
func (m *Stream) Close() error {
	var flushErr error
	if m.buf != nil && m.handle.open() {
		flushErr = m.buf.sync()
	}
	m.buf = nil

	closeErr := m.handle.close()
	if flushErr != nil {
		m.err = flushErr
		return flushErr
	}
	if closeErr != nil {
		return closeErr
	}
	return nil
}

func openForWriting(path string, mode vfs.Mode) (vfs.File, vfs.Error) {
	switch mode {
	case vfs.Write:
		return engine.OpenWrite(path)
	case vfs.Append:
		return engine.OpenAppend(path)
	default:
		return nil, vfs.NewError("invalid mode for writing: "+mode.String(), syscall.EINVAL)
	}
}
