package analyzer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opensourceways/sbom-tracer/internal/jsonl"
)

var errNoFixture = errors.New("no fixture")

type call struct {
	dir  string
	name string
	args string
}

// fakeRunner answers tool invocations from a table keyed by "dir|args".
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   []call
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}}
}

func (f *fakeRunner) on(dir, args, out string) {
	f.outputs[dir+"|"+args] = out
}

func (f *fakeRunner) Output(_ context.Context, dir, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	joined := strings.Join(args, " ")
	f.calls = append(f.calls, call{dir: dir, name: name, args: joined})
	out, ok := f.outputs[dir+"|"+joined]
	if !ok {
		return "", errNoFixture
	}
	return out, nil
}

type testEnv struct {
	*Env
	buf    *bytes.Buffer
	runner *fakeRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	buf := &bytes.Buffer{}
	runner := newFakeRunner()
	return &testEnv{
		Env: &Env{
			Out:       jsonl.NewWriter(buf),
			Workspace: t.TempDir(),
			Runner:    runner,
			Logger:    zap.NewNop(),
		},
		buf:    buf,
		runner: runner,
	}
}

func (e *testEnv) records(t *testing.T) []ProvenanceRecord {
	t.Helper()

	var out []ProvenanceRecord
	require.NoError(t, jsonl.ForEachLine(bytes.NewReader(e.buf.Bytes()), func(line []byte) error {
		var r ProvenanceRecord
		if err := jsonl.Unmarshal(line, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	}))
	return out
}

// writeTree creates files (relative path -> content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// staged returns the path a copied file from src lands at under env's staging area.
func staged(env *Env, src string) string {
	return filepath.Join(env.DefinitionDir(), strings.TrimPrefix(src, "/"))
}
