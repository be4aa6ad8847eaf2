package vfs

// Attr is a plain value implementation of FileStat, used by archive
// sources whose metadata is decoded once at mount time.
type Attr struct {
	SizeV  int64
	MtimeV int64
	ModeV  uint32
	DirV   bool
}

func (m *Attr) Size() int64 {
	return m.SizeV
}

func (m *Attr) Mtime() int64 {
	return m.MtimeV
}

func (m *Attr) Mode() uint32 {
	return m.ModeV
}

func (m *Attr) IsDir() bool {
	return m.DirV
}

// Entry is a plain value implementation of DirEntry.
type Entry struct {
	NameV string
	StatV FileStat
}

func (m *Entry) Name() string {
	return m.NameV
}

func (m *Entry) Stat() FileStat {
	return m.StatV
}
