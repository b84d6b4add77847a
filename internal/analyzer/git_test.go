package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneDir(t *testing.T) {
	tests := []struct {
		name    string
		fullCmd string
		want    string
	}{
		{"explicit directory", "git clone https://example.com/org/repo.git deps/vendor", "deps/vendor"},
		{"derived from url", "git clone https://example.com/org/repo.git", "repo"},
		{"url without suffix", "git clone https://example.com/org/repo", "repo"},
		{"trailing slash", "git clone https://example.com/org/repo.git/", "repo"},
		{"scp-like url", "git clone git@example.com:org/tool.git", "tool"},
		{"scp-like url without path", "git clone git@example.com:tool.git", "tool"},
		{"flag with value before url", "git clone -b v1.0 --depth 1 https://example.com/org/repo.git", "repo"},
		{"interleaved flag", "git clone https://github.com/iovisor/bcc.git -b master bcc-src", "bcc-src"},
		{"boolean flags", "git clone --recursive -q https://example.com/org/repo.git out", "out"},
		{"absolute git binary", "/usr/bin/git clone https://example.com/org/repo.git", "repo"},
		{"equals form", "git clone --branch=main https://example.com/org/repo.git", "repo"},
		{"unknown option before url", "git clone --no-recurse-submodules https://example.com/org/repo.git", "repo"},
		{"unknown short option before url", "git clone -X https://example.com/org/repo.git dst", "dst"},
		{"recurse submodules with pathspec", "git clone --recurse-submodules=libs https://example.com/org/repo.git", "repo"},
		{"recurse submodules bare", "git clone --recurse-submodules https://example.com/org/repo.git out", "out"},
		{"double dash", "git clone -- https://example.com/org/repo.git", "repo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CloneDir(tt.fullCmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCloneDir_Errors(t *testing.T) {
	for _, fullCmd := range []string{"git status", "git clone", "git clone --quiet"} {
		_, err := CloneDir(fullCmd)
		assert.Error(t, err, fullCmd)
	}
}

func TestGitClone_Analyze(t *testing.T) {
	env := newTestEnv(t)
	env.runner.on("/proj/deps/vendor", "describe --tags --always", "v2.1.0-3-gabc1234\n")
	env.runner.on("/proj/deps/vendor", "rev-parse --short HEAD", "abc1234\n")
	env.runner.on("/proj/deps/vendor", "config --get remote.origin.url", "https://example.com/org/repo.git\n")

	inv := Invocation{Cmd: "git", FullCmd: "git clone https://example.com/org/repo.git deps/vendor", Cwd: "/proj"}
	require.NoError(t, NewGitClone().Analyze(context.Background(), inv, env.Env))

	assert.Equal(t, []ProvenanceRecord{{
		CommitID:      "abc1234",
		VersionString: "v2.1.0-3-gabc1234",
		URL:           "https://example.com/org/repo.git",
		Tag:           "git_clone",
	}}, env.records(t))
}

func TestGitClone_AnalyzeAbsoluteDir(t *testing.T) {
	env := newTestEnv(t)
	env.runner.on("/opt/src", "describe --tags --always", "v1\n")
	env.runner.on("/opt/src", "rev-parse --short HEAD", "0000001\n")

	inv := Invocation{Cmd: "git", FullCmd: "/usr/bin/git clone https://example.com/r.git /opt/src", Cwd: "/proj"}
	require.NoError(t, NewGitClone().Analyze(context.Background(), inv, env.Env))

	records := env.records(t)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].URL, "a missing origin is not an error")
	assert.Equal(t, "/usr/bin/git", env.runner.calls[0].name)
}

func TestGitClone_AnalyzeFailure(t *testing.T) {
	env := newTestEnv(t)

	inv := Invocation{Cmd: "git", FullCmd: "git clone https://example.com/org/repo.git", Cwd: "/proj"}
	err := NewGitClone().Analyze(context.Background(), inv, env.Env)

	assert.ErrorIs(t, err, errNoFixture)
	assert.Empty(t, env.records(t))
}

func TestParseSubmoduleStatus(t *testing.T) {
	tests := []struct {
		line string
		want SubmoduleStatus
		ok   bool
	}{
		{"+abc1234 libs/foo (v1.2.3)", SubmoduleStatus{"abc1234", "libs/foo", "v1.2.3"}, true},
		{" def5678 libs/bar (heads/main)", SubmoduleStatus{"def5678", "libs/bar", "heads/main"}, true},
		{"U0123456 libs/conflict (v0.1-2-g0123456)", SubmoduleStatus{"0123456", "libs/conflict", "v0.1-2-g0123456"}, true},
		{" 89abcde libs/nodesc", SubmoduleStatus{"89abcde", "libs/nodesc", ""}, true},
		{"-fedcba9 libs/uninit", SubmoduleStatus{}, false},
		{"", SubmoduleStatus{}, false},
		{"+abc1234", SubmoduleStatus{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseSubmoduleStatus(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGitSubmodule_Analyze(t *testing.T) {
	env := newTestEnv(t)
	env.runner.on("/proj", "submodule status --recursive", "+abc1234 libs/foo (v1.2.3)\n-fedcba9 libs/broken\n")
	env.runner.on("/proj/libs/foo", "config --get remote.origin.url", "https://example.com/foo.git\n")

	inv := Invocation{Cmd: "git", FullCmd: "git submodule update --init --recursive", Cwd: "/proj"}
	require.NoError(t, NewGitSubmodule().Analyze(context.Background(), inv, env.Env))

	assert.Equal(t, []ProvenanceRecord{{
		CommitID:      "abc1234",
		VersionString: "v1.2.3",
		URL:           "https://example.com/foo.git",
		Tag:           "git_submodule",
	}}, env.records(t))
}

func TestGitMatchers(t *testing.T) {
	clone, sub := NewGitClone(), NewGitSubmodule()

	assert.True(t, clone.Match("git", "git clone https://x/y.git"))
	assert.False(t, clone.Match("git", "git fetch"))
	assert.False(t, clone.Match("gitk", "gitk clone"), "command name is anchored")

	assert.True(t, sub.Match("git", "git submodule update --init"))
	assert.True(t, sub.Match("git", "git submodule init"))
	assert.False(t, sub.Match("git", "git submodule status"))
}
