package stream

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horazont/dragonhoard/internal/engine"
	"github.com/horazont/dragonhoard/internal/vfs"
)

// withEngine runs a test against an initialized engine whose write
// directory is a fresh temp dir, mounted read-side at the root.
func withEngine(t *testing.T, fn func(dir string)) {
	dir := t.TempDir()

	require.NoError(t, engine.Init())
	defer engine.Deinit()
	require.NoError(t, engine.SetWriteDir(dir))
	require.NoError(t, engine.Mount(dir, "", true))

	fn(dir)
}

func TestWriteReadRoundTrip(t *testing.T) {
	withEngine(t, func(dir string) {
		data := patternData(5000) // spans multiple buffer fills

		out, err := OpenOutput("blob.bin", vfs.Write)
		require.NoError(t, err)
		n, err := out.Write(data)
		assert.Nil(t, err)
		assert.Equal(t, len(data), n)
		require.NoError(t, out.Close())

		in, err := OpenInput("blob.bin")
		require.NoError(t, err)
		defer in.Close()

		read, err := io.ReadAll(in)
		assert.Nil(t, err)
		assert.Equal(t, data, read)
		assert.Equal(t, int64(len(data)), in.Length())
	})
}

func TestAppendModePositionsAtEnd(t *testing.T) {
	withEngine(t, func(dir string) {
		out, err := OpenOutput("log.txt", vfs.Write)
		require.NoError(t, err)
		_, err = out.WriteString("hello")
		assert.Nil(t, err)
		require.NoError(t, out.Close())

		app, err := OpenOutput("log.txt", vfs.Append)
		require.NoError(t, err)
		_, err = app.WriteString(" world")
		assert.Nil(t, err)
		require.NoError(t, app.Close())

		in, err := OpenInput("log.txt")
		require.NoError(t, err)
		defer in.Close()

		content, err := io.ReadAll(in)
		assert.Nil(t, err)
		assert.Equal(t, "hello world", string(content))
	})
}

func TestOpenMissingFileFails(t *testing.T) {
	withEngine(t, func(dir string) {
		in, err := OpenInput("does/not/exist")
		assert.NotNil(t, err)
		assert.Nil(t, in)
	})
}

func TestWriteModeTruncates(t *testing.T) {
	withEngine(t, func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("old content"), 0644))

		out, err := OpenOutput("old.txt", vfs.Write)
		require.NoError(t, err)
		_, err = out.WriteString("new")
		assert.Nil(t, err)
		require.NoError(t, out.Close())

		content, err := os.ReadFile(filepath.Join(dir, "old.txt"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(content))
	})
}

func TestReopenInPlace(t *testing.T) {
	withEngine(t, func(dir string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("AAA"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("BBBB"), 0644))

		in, err := OpenInput("a.txt")
		require.NoError(t, err)
		defer in.Close()

		content, err := io.ReadAll(in)
		assert.Nil(t, err)
		assert.Equal(t, "AAA", string(content))

		// reopening resets both the handle and the buffer state
		require.NoError(t, in.Open("b.txt"))
		assert.Equal(t, int64(4), in.Length())

		content, err = io.ReadAll(in)
		assert.Nil(t, err)
		assert.Equal(t, "BBBB", string(content))
	})
}

func TestIdempotentClose(t *testing.T) {
	file := newMockFile(patternData(10))
	in, err := NewInput(file)
	require.NoError(t, err)

	assert.Nil(t, in.Close())
	assert.Nil(t, in.Close())
	assert.Equal(t, 1, file.CloseCalls)

	out := newMockFile(nil)
	w, err := NewOutput(out)
	require.NoError(t, err)
	_, err = w.WriteString("pending")
	assert.Nil(t, err)

	assert.Nil(t, w.Close())
	assert.Nil(t, w.Close())
	assert.Equal(t, 1, out.CloseCalls)
	assert.Equal(t, 1, out.WriteCalls)
}

func TestNilHandleRejectedImmediately(t *testing.T) {
	_, err := NewInput(nil)
	assert.Equal(t, ErrInvalidHandle, err)

	_, err = NewOutput(nil)
	assert.Equal(t, ErrInvalidHandle, err)

	_, err = NewFile(nil)
	assert.Equal(t, ErrInvalidHandle, err)
}

func TestUnopenedStream(t *testing.T) {
	var in InputStream
	_, err := in.Read(make([]byte, 4))
	assert.Equal(t, ErrNotOpen, err)
	assert.Nil(t, in.Close())

	var out OutputStream
	_, err = out.Write([]byte("x"))
	assert.Equal(t, ErrNotOpen, err)
	assert.Equal(t, ErrNotOpen, out.Sync())
	assert.Nil(t, out.Close())
}

func TestShortWriteSurfacesOnSync(t *testing.T) {
	file := newMockFile(nil)
	file.AcceptAtMost = 3

	out, err := NewOutput(file)
	require.NoError(t, err)

	_, err = out.WriteString("0123456789")
	assert.Nil(t, err)

	assert.Equal(t, ErrShortWrite, out.Sync())
	assert.Equal(t, ErrShortWrite, out.Err())

	// the stream stays failed until reopened
	_, err = out.WriteString("more")
	assert.Equal(t, ErrShortWrite, err)
}

func TestShortWriteSurfacesOnClose(t *testing.T) {
	file := newMockFile(nil)
	file.AcceptAtMost = 3

	out, err := NewOutput(file)
	require.NoError(t, err)

	_, err = out.WriteString("0123456789")
	assert.Nil(t, err)

	assert.Equal(t, ErrShortWrite, out.Close())
	assert.Equal(t, ErrShortWrite, out.Err())
	// the handle is released regardless of the flush failure
	assert.Equal(t, 1, file.CloseCalls)
}

func TestOutputSeekFlushesFirst(t *testing.T) {
	file := newMockFile(nil)
	out, err := NewOutput(file)
	require.NoError(t, err)

	_, err = out.WriteString("abcdef")
	assert.Nil(t, err)
	assert.Equal(t, 0, file.WriteCalls)

	pos, err := out.Seek(0, io.SeekStart)
	assert.Nil(t, err)
	assert.Equal(t, int64(0), pos)
	assert.Equal(t, 1, file.WriteCalls)
	assert.Equal(t, []byte("abcdef"), file.Data)
}

func TestInputSeekReportsLogicalPosition(t *testing.T) {
	file := newMockFile(patternData(100))
	in, err := NewInput(file)
	require.NoError(t, err)

	dest := make([]byte, 10)
	_, err = in.Read(dest)
	assert.Nil(t, err)

	// the buffer holds unread bytes; the reported position must be the
	// ten bytes the caller consumed, not the engine cursor
	pos, err := in.Seek(0, io.SeekCurrent)
	assert.Nil(t, err)
	assert.Equal(t, int64(10), pos)
}

func TestBidirectionalStream(t *testing.T) {
	file := newMockFile(patternData(32))
	s, err := NewFile(file)
	require.NoError(t, err)

	dest := make([]byte, 4)
	_, err = s.Read(dest)
	assert.Nil(t, err)
	assert.Equal(t, patternData(4), dest)

	// reposition before switching from reading to writing
	pos, err := s.Seek(4, io.SeekStart)
	assert.Nil(t, err)
	assert.Equal(t, int64(4), pos)

	_, err = s.Write([]byte{0xff, 0xff})
	assert.Nil(t, err)
	assert.Nil(t, s.Sync())

	_, err = s.Seek(0, io.SeekStart)
	assert.Nil(t, err)

	content, err := io.ReadAll(s)
	assert.Nil(t, err)

	expected := patternData(32)
	expected[4] = 0xff
	expected[5] = 0xff
	assert.Equal(t, expected, content)

	assert.Nil(t, s.Close())
}

func TestReadByte(t *testing.T) {
	file := newMockFile([]byte{1, 2, 3})
	in, err := NewInput(file)
	require.NoError(t, err)

	for want := byte(1); want <= 3; want++ {
		c, err := in.ReadByte()
		assert.Nil(t, err)
		assert.Equal(t, want, c)
	}

	_, err = in.ReadByte()
	assert.Equal(t, io.EOF, err)
	assert.Nil(t, in.Err())
}

func TestReadFailureIsSticky(t *testing.T) {
	file := newMockFile(patternData(10))
	file.FailReads = true

	in, err := NewInput(file)
	require.NoError(t, err)

	_, err = in.Read(make([]byte, 4))
	assert.NotNil(t, err)
	assert.NotNil(t, in.Err())

	// end of data is not a failure, but this is one
	_, err = in.Read(make([]byte, 4))
	assert.NotNil(t, err)
	assert.NotEqual(t, io.EOF, err)
}
