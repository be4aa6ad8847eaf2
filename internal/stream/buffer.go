package stream

import (
	"io"

	"github.com/horazont/dragonhoard/internal/vfs"
)

// DefaultBufferSize is the capacity of each of the two buffer regions.
const DefaultBufferSize = 2048

// fileBuffer translates between the stream abstraction and the byte-range
// operations of one vfs.File. The get-area is rbuf[rpos:rend], the
// put-area is wbuf[:wlen]. At most one of the two regions holds data that
// is relevant to the next engine call; callers must not interleave reads
// and writes without an intervening seek or flush.
type fileBuffer struct {
	file vfs.File
	rbuf []byte
	rpos int
	rend int
	wbuf []byte
	wlen int
}

func newFileBuffer(file vfs.File, size int) *fileBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &fileBuffer{
		file: file,
		rbuf: make([]byte, size),
		wbuf: make([]byte, size),
	}
}

// buffered is the number of bytes pulled from the file but not yet
// consumed by the caller. The engine cursor is ahead of the logical
// stream position by exactly this count.
func (m *fileBuffer) buffered() int {
	return m.rend - m.rpos
}

// pending is the number of unflushed bytes in the put-area.
func (m *fileBuffer) pending() int {
	return m.wlen
}

// fill loads the get-area with the next chunk of the file. It issues at
// most one engine read and returns io.EOF when the file is exhausted,
// without attempting a read past end of file.
func (m *fileBuffer) fill() error {
	if m.file.EOF() {
		return io.EOF
	}

	n, err := m.file.ReadBytes(m.rbuf)
	if err != nil {
		return err
	}
	if n < 1 {
		return io.EOF
	}

	m.rpos = 0
	m.rend = n
	return nil
}

func (m *fileBuffer) read(dest []byte) (int, error) {
	if len(dest) == 0 {
		return 0, nil
	}
	if m.rpos == m.rend {
		if err := m.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(dest, m.rbuf[m.rpos:m.rend])
	m.rpos += n
	return n, nil
}

func (m *fileBuffer) readByte() (byte, error) {
	if m.rpos == m.rend {
		if err := m.fill(); err != nil {
			return 0, err
		}
	}

	c := m.rbuf[m.rpos]
	m.rpos++
	return c, nil
}

// flush writes the put-area to the file in one call. An empty put-area
// issues no engine write at all. A partially accepted write is an error;
// the medium below is full or broken.
func (m *fileBuffer) flush() error {
	if m.wlen == 0 {
		return nil
	}

	n, err := m.file.WriteBytes(m.wbuf[:m.wlen])
	if err != nil {
		return err
	}
	if n < m.wlen {
		return ErrShortWrite
	}

	m.wlen = 0
	return nil
}

func (m *fileBuffer) write(data []byte) (int, error) {
	written := 0
	for len(data) > 0 {
		if m.wlen == len(m.wbuf) {
			if err := m.flush(); err != nil {
				return written, err
			}
		}

		n := copy(m.wbuf[m.wlen:], data)
		m.wlen += n
		written += n
		data = data[n:]
	}
	return written, nil
}

func (m *fileBuffer) writeByte(c byte) error {
	if m.wlen == len(m.wbuf) {
		if err := m.flush(); err != nil {
			return err
		}
	}

	m.wbuf[m.wlen] = c
	m.wlen++
	return nil
}

// seek computes the absolute target position and issues one engine seek.
// For io.SeekCurrent the unread-but-buffered byte count is subtracted so
// that the logical stream position is respected, not the engine cursor.
// in empties the get-area, out empties the put-area; callers are expected
// to flush before seeking away from pending writes. The new absolute
// position is returned as reported by the engine.
func (m *fileBuffer) seek(offset int64, whence int, in bool, out bool) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.file.Tell() + offset - int64(m.buffered())
	case io.SeekEnd:
		target = m.file.Length() + offset
	default:
		return 0, errWhence
	}

	if err := m.file.Seek(target); err != nil {
		return 0, err
	}

	if in {
		m.rpos = 0
		m.rend = 0
	}
	if out {
		m.wlen = 0
	}

	return m.file.Tell(), nil
}

// sync flushes and resets the put-area even if the flush failed.
func (m *fileBuffer) sync() error {
	err := m.flush()
	m.wlen = 0
	return err
}
