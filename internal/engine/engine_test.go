package engine

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horazont/dragonhoard/internal/vfs"
)

func initEngine(t *testing.T) {
	require.NoError(t, Init())
	t.Cleanup(func() {
		if IsInit() {
			Deinit()
		}
	})
}

func populate(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
	return dir
}

func readAll(t *testing.T, file vfs.File) string {
	var out []byte
	dest := make([]byte, 32)
	for !file.EOF() {
		n, err := file.ReadBytes(dest)
		require.Nil(t, err)
		if n == 0 {
			break
		}
		out = append(out, dest[:n]...)
	}
	return string(out)
}

func TestLifecycle(t *testing.T) {
	assert.False(t, IsInit())

	require.NoError(t, Init())
	assert.True(t, IsInit())
	assert.Equal(t, ErrInitialized, Init())

	require.NoError(t, Deinit())
	assert.False(t, IsInit())
	assert.Equal(t, error(ErrNotInitialized), Deinit())
}

func TestNotInitialized(t *testing.T) {
	_, err := OpenRead("x")
	assert.Equal(t, vfs.Error(ErrNotInitialized), err)

	_, err2 := Stat("x")
	assert.Equal(t, vfs.Error(ErrNotInitialized), err2)

	assert.Equal(t, error(ErrNotInitialized), Mount(t.TempDir(), "", true))
}

func TestSearchPathPrecedence(t *testing.T) {
	initEngine(t)

	first := populate(t, map[string]string{"shared.txt": "from first", "only-first": "1"})
	second := populate(t, map[string]string{"shared.txt": "from second", "only-second": "2"})

	require.NoError(t, Mount(first, "", true))
	require.NoError(t, Mount(second, "", true))
	assert.Equal(t, []string{first, second}, SearchPath())

	file, err := OpenRead("shared.txt")
	require.Nil(t, err)
	assert.Equal(t, "from first", readAll(t, file))
	assert.Nil(t, file.Close())

	// files unique to either mount resolve too
	assert.True(t, Exists("only-first"))
	assert.True(t, Exists("only-second"))

	// prepending puts a mount in front of the line
	third := populate(t, map[string]string{"shared.txt": "from third"})
	require.NoError(t, Mount(third, "", false))

	file, err = OpenRead("shared.txt")
	require.Nil(t, err)
	assert.Equal(t, "from third", readAll(t, file))
	assert.Nil(t, file.Close())
}

func TestMountPointTranslation(t *testing.T) {
	initEngine(t)

	dir := populate(t, map[string]string{"readme": "content"})
	require.NoError(t, Mount(dir, "/assets/data", true))

	file, err := OpenRead("/assets/data/readme")
	require.Nil(t, err)
	assert.Equal(t, "content", readAll(t, file))
	assert.Nil(t, file.Close())

	// ancestors of the mount point exist as virtual directories
	for _, p := range []string{"/", "/assets", "/assets/data"} {
		stat, err := Stat(p)
		require.Nil(t, err, p)
		assert.True(t, stat.IsDir(), p)
	}
	assert.True(t, IsDirectory("/assets"))

	names, err := Enumerate("/")
	require.Nil(t, err)
	assert.Equal(t, []string{"assets"}, names)

	names, err = Enumerate("/assets")
	require.Nil(t, err)
	assert.Equal(t, []string{"data"}, names)

	names, err = Enumerate("/assets/data")
	require.Nil(t, err)
	assert.Equal(t, []string{"readme"}, names)

	// paths outside the mount point do not resolve
	assert.False(t, Exists("/readme"))
}

func TestReadDirMerges(t *testing.T) {
	initEngine(t)

	first := populate(t, map[string]string{"a": "1", "both": "first"})
	second := populate(t, map[string]string{"b": "2", "both": "second"})
	require.NoError(t, Mount(first, "", true))
	require.NoError(t, Mount(second, "", true))

	entries, err := ReadDir("/")
	require.Nil(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Name())
	assert.Equal(t, "b", entries[1].Name())
	assert.Equal(t, "both", entries[2].Name())

	// the earlier mount wins the collision
	assert.Equal(t, int64(len("first")), entries[2].Stat().Size())
}

func TestRealDir(t *testing.T) {
	initEngine(t)

	first := populate(t, map[string]string{"a": "1"})
	second := populate(t, map[string]string{"b": "2"})
	require.NoError(t, Mount(first, "", true))
	require.NoError(t, Mount(second, "", true))

	src, err := RealDir("a")
	require.Nil(t, err)
	assert.Equal(t, first, src)

	src, err = RealDir("b")
	require.Nil(t, err)
	assert.Equal(t, second, src)

	_, err = RealDir("absent")
	require.NotNil(t, err)
	assert.Equal(t, uintptr(syscall.ENOENT), err.Errno())
}

func TestUnmount(t *testing.T) {
	initEngine(t)

	dir := populate(t, map[string]string{"f": "x"})
	require.NoError(t, Mount(dir, "", true))
	assert.True(t, Exists("f"))

	point, err := MountPoint(dir)
	require.NoError(t, err)
	assert.Equal(t, "/", point)

	require.NoError(t, Unmount(dir))
	assert.False(t, Exists("f"))
	assert.Error(t, Unmount(dir))
}

func TestWriteDir(t *testing.T) {
	initEngine(t)

	// writes without a write dir fail cleanly
	_, err := OpenWrite("f")
	assert.Equal(t, vfs.Error(ErrNoWriteDir), err)

	dir := t.TempDir()
	require.NoError(t, SetWriteDir(dir))
	assert.Equal(t, dir, WriteDir())

	require.Nil(t, Mkdir("sub"))

	file, err := OpenWrite("sub/out.bin")
	require.Nil(t, err)
	_, err = file.WriteBytes([]byte("payload"))
	require.Nil(t, err)
	require.Nil(t, file.Close())

	content, oserr := os.ReadFile(filepath.Join(dir, "sub", "out.bin"))
	require.NoError(t, oserr)
	assert.Equal(t, "payload", string(content))

	file, err = OpenAppend("sub/out.bin")
	require.Nil(t, err)
	assert.Equal(t, int64(7), file.Tell())
	require.Nil(t, file.Close())

	require.Nil(t, Delete("sub/out.bin"))
	_, oserr = os.Stat(filepath.Join(dir, "sub", "out.bin"))
	assert.True(t, os.IsNotExist(oserr))

	// the write dir is not implicitly readable
	require.Nil(t, Mkdir("only-written"))
	assert.False(t, Exists("only-written"))
}

func TestOpenByMode(t *testing.T) {
	initEngine(t)

	dir := populate(t, map[string]string{"in": "data"})
	require.NoError(t, Mount(dir, "", true))
	require.NoError(t, SetWriteDir(t.TempDir()))

	file, err := Open("in", vfs.Read)
	require.Nil(t, err)
	assert.Nil(t, file.Close())

	file, err = Open("out", vfs.Write)
	require.Nil(t, err)
	assert.Nil(t, file.Close())

	file, err = Open("out2", vfs.Append)
	require.Nil(t, err)
	assert.Nil(t, file.Close())

	_, err = Open("in", vfs.Mode(99))
	require.NotNil(t, err)
	assert.Equal(t, uintptr(syscall.EINVAL), err.Errno())
}

func TestUnsupportedArchive(t *testing.T) {
	initEngine(t)

	path := filepath.Join(t.TempDir(), "data.tar")
	require.NoError(t, os.WriteFile(path, []byte("tar?"), 0644))

	assert.Error(t, Mount(path, "", true))
}

func TestMountArchives(t *testing.T) {
	initEngine(t)

	// engine-level smoke test; the archive sources have their own tests
	dir := populate(t, map[string]string{"plain.txt": "plain"})
	require.NoError(t, Mount(dir, "", true))

	stat, err := Stat("plain.txt")
	require.Nil(t, err)
	assert.Equal(t, int64(5), stat.Size())
}
