package bpfloader

import (
	"bufio"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrLibraryNotFound is returned when a short library name cannot be resolved.
var ErrLibraryNotFound = errors.New("library not found")

// libraryDirs are searched when the loader cache has no entry.
var libraryDirs = []string{
	"/lib64",
	"/usr/lib64",
	"/lib",
	"/usr/lib",
	"/lib/x86_64-linux-gnu",
	"/usr/lib/x86_64-linux-gnu",
	"/lib/aarch64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
	"/usr/local/lib",
}

// ResolveLibrary maps a short name such as "ssl" to a shared object path,
// the way the dynamic loader would. Absolute paths are returned unchanged.
func ResolveLibrary(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	if out, err := exec.Command("ldconfig", "-p").Output(); err == nil {
		if path := parseLdconfig(string(out), name); path != "" {
			return path, nil
		}
	}

	for _, dir := range libraryDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "lib"+name+".so*"))
		if err != nil {
			continue
		}
		if path := firstSharedObject(matches, name); path != "" {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: lib%s.so", ErrLibraryNotFound, name)
}

// parseLdconfig picks the first entry of `ldconfig -p` output for lib<name>.so.
// Entries look like: "\tlibssl.so.3 (libc6,x86-64) => /usr/lib64/libssl.so.3".
func parseLdconfig(out, name string) string {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		soname, rest, ok := strings.Cut(line, " ")
		if !ok || !matchesSoname(soname, name) {
			continue
		}
		if _, path, ok := strings.Cut(rest, "=> "); ok {
			return strings.TrimSpace(path)
		}
	}
	return ""
}

func firstSharedObject(paths []string, name string) string {
	for _, p := range paths {
		if matchesSoname(filepath.Base(p), name) {
			return p
		}
	}
	return ""
}

// matchesSoname reports whether soname is lib<name>.so or a versioned form of it.
func matchesSoname(soname, name string) bool {
	prefix := "lib" + name + ".so"
	return soname == prefix || strings.HasPrefix(soname, prefix+".")
}
