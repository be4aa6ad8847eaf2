package vfs

// Mode selects how a file is opened through the engine.
type Mode int

const (
	// Read opens an existing file for reading, positioned at the start.
	Read Mode = iota
	// Write creates or truncates a file in the write directory.
	Write
	// Append creates a file in the write directory if needed and
	// positions the cursor at the end.
	Append
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case Append:
		return "append"
	}
	return "invalid"
}

// File is one open handle inside a mount source. A handle carries its own
// cursor; it is exclusively owned and not safe for concurrent use.
type File interface {
	// ReadBytes reads up to len(dest) bytes at the cursor and advances
	// the cursor by the number of bytes read. Reading at end of file
	// returns (0, nil); errors are reserved for real I/O failures.
	ReadBytes(dest []byte) (int, Error)

	// WriteBytes writes data at the cursor and advances it. A source
	// that is not writable returns EROFS.
	WriteBytes(data []byte) (int, Error)

	// Seek moves the cursor to an absolute byte position.
	Seek(position int64) Error

	// Tell reports the current cursor position.
	Tell() int64

	// Length reports the total byte length of the file. For files open
	// for writing this reflects bytes flushed so far.
	Length() int64

	// EOF reports whether the cursor is at or beyond end of file.
	EOF() bool

	Close() Error
}

// Source is one entry in the engine's search path: a directory tree or the
// contents of an archive container.
type Source interface {
	OpenRead(path string) (File, Error)
	Stat(path string) (FileStat, Error)
	ReadDir(path string) ([]DirEntry, Error)
	Close() Error
}

// WritableSource is a Source that can also create and remove files. Only
// the engine's write directory needs to implement it.
type WritableSource interface {
	Source
	OpenWrite(path string) (File, Error)
	OpenAppend(path string) (File, Error)
	Mkdir(path string) Error
	Delete(path string) Error
}

type FileStat interface {
	Size() int64
	Mtime() int64
	Mode() uint32
	IsDir() bool
}

type DirEntry interface {
	Name() string
	Stat() FileStat
}

// Error is the failure type crossing the engine boundary. The errno makes
// failures mappable onto FUSE status codes without string matching.
type Error interface {
	error
	Errno() uintptr
}
