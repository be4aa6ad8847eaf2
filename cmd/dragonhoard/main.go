package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/horazont/dragonhoard/internal/engine"
	"github.com/horazont/dragonhoard/internal/frontend"
	"github.com/horazont/dragonhoard/internal/stream"
	"github.com/horazont/dragonhoard/internal/vfs"
)

type mountConfig struct {
	Source string `toml:"source"`
	Point  string `toml:"point"`
	Append bool   `toml:"append"`
}

type config struct {
	WriteDir string        `toml:"write_dir"`
	Mounts   []mountConfig `toml:"mount"`
}

func loadConfig(path string) (*config, error) {
	cfg := &config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [options] COMMAND [ARG...]\n", path.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, `
commands:
  ls PATH              list a virtual directory
  cat PATH             copy a virtual file to stdout
  cp SRC... DESTDIR    extract virtual files into a host directory
  put HOSTFILE PATH    store a host file into the write directory
  append HOSTFILE PATH append a host file to a file in the write directory
  mkdir PATH           create a directory in the write directory
  rm PATH              delete from the write directory
  mount MOUNTPOINT     serve the search path as a FUSE filesystem

options:
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	configPath := flag.String("config", "", "TOML file declaring mounts and the write directory")
	mounts := flag.StringArray("mount", nil, "mount SOURCE[:POINT]; may be repeated")
	writeDir := flag.String("write-dir", "", "host directory receiving all writes")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg := &config{}
	if *configPath != "" {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}
	if *writeDir != "" {
		cfg.WriteDir = *writeDir
	}
	for _, spec := range *mounts {
		source, point := splitMountSpec(spec)
		cfg.Mounts = append(cfg.Mounts, mountConfig{
			Source: source,
			Point:  point,
			Append: true,
		})
	}

	if err := engine.Init(); err != nil {
		log.Fatalf("init: %v", err)
	}
	defer engine.Deinit()

	if cfg.WriteDir != "" {
		if err := engine.SetWriteDir(cfg.WriteDir); err != nil {
			log.Fatalf("write dir: %v", err)
		}
	}
	for _, mnt := range cfg.Mounts {
		if err := engine.Mount(mnt.Source, mnt.Point, mnt.Append); err != nil {
			log.Fatalf("mount %s: %v", mnt.Source, err)
		}
	}

	args := flag.Args()
	if err := run(args[0], args[1:]); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

// splitMountSpec splits "SOURCE:POINT", leaving POINT empty (the root)
// when no colon is present.
func splitMountSpec(spec string) (string, string) {
	for i := len(spec) - 1; i >= 0; i-- {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:]
		}
	}
	return spec, ""
}

func run(command string, args []string) error {
	switch command {
	case "ls":
		if len(args) != 1 {
			usage()
		}
		return cmdList(args[0])
	case "cat":
		if len(args) != 1 {
			usage()
		}
		return cmdCat(args[0])
	case "cp":
		if len(args) < 2 {
			usage()
		}
		return cmdExtract(args[:len(args)-1], args[len(args)-1])
	case "put":
		if len(args) != 2 {
			usage()
		}
		return cmdPut(args[0], args[1], vfs.Write)
	case "append":
		if len(args) != 2 {
			usage()
		}
		return cmdPut(args[0], args[1], vfs.Append)
	case "mkdir":
		if len(args) != 1 {
			usage()
		}
		if err := engine.Mkdir(args[0]); err != nil {
			return err
		}
		return nil
	case "rm":
		if len(args) != 1 {
			usage()
		}
		if err := engine.Delete(args[0]); err != nil {
			return err
		}
		return nil
	case "mount":
		if len(args) != 1 {
			usage()
		}
		return cmdMount(args[0])
	default:
		usage()
		return nil
	}
}

func cmdList(dir string) error {
	entries, err := engine.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		stat := entry.Stat()
		if stat.IsDir() {
			fmt.Printf("%-10s %s/\n", "", entry.Name())
		} else {
			fmt.Printf("%10d %s\n", stat.Size(), entry.Name())
		}
	}
	return nil
}

func cmdCat(path string) error {
	in, err := stream.OpenInput(path)
	if err != nil {
		return err
	}
	defer in.Close()

	if _, err := io.Copy(os.Stdout, in); err != nil {
		return err
	}
	return nil
}

// cmdExtract copies the named virtual files into the destination host
// directory, one goroutine per file.
func cmdExtract(sources []string, destDir string) error {
	var group errgroup.Group
	for _, source := range sources {
		source := source
		group.Go(func() error {
			return extractOne(source, filepath.Join(destDir, path.Base(source)))
		})
	}
	return group.Wait()
}

func extractOne(source string, dest string) error {
	in, err := stream.OpenInput(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", source, err)
	}
	return out.Close()
}

func cmdPut(hostPath string, destPath string, mode vfs.Mode) error {
	in, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := stream.OpenOutput(destPath, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func cmdMount(mountpoint string) error {
	fs := frontend.NewHoardFS()
	pathFs := pathfs.NewPathNodeFs(fs, nil)
	conn := nodefs.NewFileSystemConnector(pathFs.Root(), nodefs.NewOptions())

	server, err := fuse.NewServer(conn.RawFS(), mountpoint, &fuse.MountOptions{
		Name:   "dragonhoard",
		FsName: "dragonhoard",
	})
	if err != nil {
		return err
	}

	log.Printf("serving on %s", mountpoint)
	server.Serve()
	return nil
}
