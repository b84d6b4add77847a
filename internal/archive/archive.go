// Package archive writes gzip-compressed tarballs of session artifacts.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Entry adds the file or directory at Path under the archive name Name.
type Entry struct {
	Path string
	Name string
}

// TarGz replaces dst with an archive of entries. Directories are added
// recursively; a missing entry is an error.
func TarGz(dst string, entries ...Entry) (err error) {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if err != nil {
			_ = os.Remove(dst) //nolint:errcheck // Best effort cleanup of a partial archive
		}
	}()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	for _, e := range entries {
		if err := addTree(tw, e.Path, e.Name); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("finishing gzip stream: %w", err)
	}
	return nil
}

func addTree(tw *tar.Writer, root, name string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("archiving %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		return addEntry(tw, path, filepath.ToSlash(filepath.Join(name, rel)), info)
	})
}

func addEntry(tw *tar.Writer, path, name string, info fs.FileInfo) error {
	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		var err error
		if link, err = os.Readlink(path); err != nil {
			return fmt.Errorf("reading link %s: %w", path, err)
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("header for %s: %w", path, err)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // Read-only file
	}()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	return nil
}
