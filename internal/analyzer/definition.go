package analyzer

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/logging"
)

// Build-definition file name patterns per ecosystem.
var (
	PythonDefinitions = definitionPattern(`^.*requirements.*\.txt$`, `^setup\.py$`)
	MavenDefinitions  = definitionPattern(`^pom\.xml$`)
	GradleDefinitions = definitionPattern(
		`^build\.gradle$`, `^build\.gradle\.kts$`,
		`^settings\.gradle$`, `^settings\.gradle\.kts$`,
		`^gradle\.properties$`, `^libs\.versions\.toml$`,
	)
	AllDefinitions = definitionPattern(
		`^.*requirements.*\.txt$`, `^setup\.py$`,
		`^pom\.xml$`,
		`^build\.gradle$`, `^build\.gradle\.kts$`,
		`^settings\.gradle$`, `^settings\.gradle\.kts$`,
		`^gradle\.properties$`, `^libs\.versions\.toml$`,
	)
)

// Name fragments marking non-production files and directories.
var blocklist = []string{"test", "example", "sample", "dev"}

func definitionPattern(patterns ...string) *regexp.Regexp {
	return regexp.MustCompile(strings.Join(patterns, "|"))
}

func blocked(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range blocklist {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// CopyDefinitionFiles copies the files directly inside srcDir whose names
// match pattern into dstRoot, under srcDir's absolute path without its
// leading separator. It returns how many files were copied.
func CopyDefinitionFiles(srcDir, dstRoot string, pattern *regexp.Regexp, logger *zap.Logger) (int, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", srcDir, err)
	}

	copied := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ok, err := copyDefinitionFile(srcDir, e.Name(), dstRoot, pattern, logger)
		if err != nil {
			return copied, err
		}
		if ok {
			copied++
		}
	}
	return copied, nil
}

// CopyDefinitionFilesRecursive is CopyDefinitionFiles over the whole tree
// below srcDir. Directories whose names hit the blocklist are skipped with
// everything beneath them, as are directories that cannot be read.
func CopyDefinitionFilesRecursive(srcDir, dstRoot string, pattern *regexp.Regexp, logger *zap.Logger) (int, error) {
	copied := 0
	if err := filepath.WalkDir(srcDir, definitionVisitor(srcDir, dstRoot, pattern, logger, &copied)); err != nil {
		return copied, fmt.Errorf("walking %s: %w", srcDir, err)
	}
	return copied, nil
}

func definitionVisitor(srcDir, dstRoot string, pattern *regexp.Regexp, logger *zap.Logger, copied *int) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				logger.Warn("skipping unreadable directory", logging.Dir(path), zap.Error(err))
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if path != srcDir && blocked(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := copyDefinitionFile(filepath.Dir(path), d.Name(), dstRoot, pattern, logger)
		if ok {
			*copied++
		}
		return err
	}
}

func copyDefinitionFile(dir, name, dstRoot string, pattern *regexp.Regexp, logger *zap.Logger) (bool, error) {
	if blocked(name) || !pattern.MatchString(name) {
		return false, nil
	}

	targetDir := filepath.Join(dstRoot, strings.TrimLeft(dir, string(filepath.Separator)))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return false, fmt.Errorf("creating %s: %w", targetDir, err)
	}

	logger.Info("copying definition file", logging.Path(filepath.Join(dir, name)), logging.Dir(targetDir))
	if err := copyFile(filepath.Join(dir, name), filepath.Join(targetDir, name)); err != nil {
		return false, err
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer func() {
		_ = in.Close() //nolint:errcheck // Read-only file
	}()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close() //nolint:errcheck // Copy error takes precedence
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
