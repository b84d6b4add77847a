package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/pflag"

	"github.com/opensourceways/sbom-tracer/internal/logging"
)

// GitClone records the revision of a freshly cloned repository.
type GitClone struct{ matcher }

// NewGitClone creates the git clone analyzer.
func NewGitClone() *GitClone {
	return &GitClone{newMatcher("git_clone", `^git$`, `git\s*clone.*`)}
}

// Analyze runs in the clone destination and writes one record.
func (g *GitClone) Analyze(ctx context.Context, inv Invocation, env *Env) error {
	dir, err := CloneDir(inv.FullCmd)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(inv.Cwd, dir)
	}

	git := toolName(inv.FullCmd, "git")
	version, err := env.Runner.Output(ctx, dir, git, "describe", "--tags", "--always")
	if err != nil {
		return fmt.Errorf("describing %s: %w", dir, err)
	}
	commit, err := env.Runner.Output(ctx, dir, git, "rev-parse", "--short", "HEAD")
	if err != nil {
		return fmt.Errorf("resolving HEAD of %s: %w", dir, err)
	}

	return env.Out.Write(ProvenanceRecord{
		CommitID:      strings.TrimSpace(commit),
		VersionString: strings.TrimSpace(version),
		URL:           originURL(ctx, env, git, dir),
		Tag:           g.Tag(),
	})
}

var cloneArgsRe = regexp.MustCompile(`git\s*clone(.*)`)

// CloneDir infers the directory a git clone command line writes to: the
// explicit directory argument, else the first extra positional, else the
// last path segment of the repository URL without its .git suffix.
func CloneDir(fullCmd string) (string, error) {
	m := cloneArgsRe.FindStringSubmatch(fullCmd)
	if m == nil {
		return "", fmt.Errorf("not a clone command: %q", fullCmd)
	}

	fs := cloneFlags()
	if err := fs.Parse(dropUnknownFlags(fs, strings.Fields(m[1]))); err != nil {
		return "", fmt.Errorf("parsing clone arguments: %w", err)
	}

	args := fs.Args()
	switch len(args) {
	case 0:
		return "", fmt.Errorf("no repository in %q", fullCmd)
	case 1:
		repo := strings.TrimRight(args[0], "/")
		name := repo[strings.LastIndexAny(repo, "/:")+1:]
		name = strings.TrimSuffix(name, ".git")
		if name == "" {
			return "", fmt.Errorf("cannot derive directory from %q", args[0])
		}
		return name, nil
	default:
		return args[1], nil
	}
}

// cloneFlags mirrors the value-taking and boolean options of git clone so
// that option values are not mistaken for positionals.
func cloneFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("git-clone", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetInterspersed(true)
	fs.Usage = func() {}

	for _, b := range []struct{ long, short string }{
		{"local", "l"}, {"no-hardlinks", ""}, {"shared", "s"}, {"dissociate", ""},
		{"quiet", "q"}, {"verbose", "v"}, {"progress", ""}, {"no-checkout", "n"},
		{"reject-shallow", ""}, {"no-reject-shallow", ""}, {"bare", ""}, {"sparse", ""},
		{"also-filter-submodules", ""}, {"mirror", ""}, {"single-branch", ""},
		{"no-single-branch", ""}, {"no-tags", ""}, {"recursive", ""}, {"shallow-submodules", ""}, {"no-shallow-submodules", ""},
		{"remote-submodules", ""}, {"no-remote-submodules", ""},
	} {
		fs.BoolP(b.long, b.short, false, "")
	}
	for _, s := range []struct{ long, short string }{
		{"reference", ""}, {"reference-if-able", ""}, {"server-option", ""},
		{"filter", ""}, {"origin", "o"}, {"branch", "b"}, {"upload-pack", "u"},
		{"template", ""}, {"config", "c"}, {"depth", ""}, {"shallow-since", ""},
		{"shallow-exclude", ""}, {"separate-git-dir", ""}, {"jobs", "j"},
	} {
		fs.StringArrayP(s.long, s.short, nil, "")
	}

	// --recurse-submodules[=<pathspec>]
	fs.StringArray("recurse-submodules", nil, "")
	fs.Lookup("recurse-submodules").NoOptDefVal = "."
	return fs
}

// dropUnknownFlags removes options fs does not define, so that an unknown
// option never takes the following positional as its value.
func dropUnknownFlags(fs *pflag.FlagSet, args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		switch {
		case arg == "--":
			return append(out, args[i:]...)
		case strings.HasPrefix(arg, "--"):
			name, _, _ := strings.Cut(arg[2:], "=")
			if fs.Lookup(name) == nil {
				continue
			}
		case len(arg) > 1 && arg[0] == '-':
			if fs.ShorthandLookup(arg[1:2]) == nil {
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}

// GitSubmodule records every initialized submodule below the working directory.
type GitSubmodule struct{ matcher }

// NewGitSubmodule creates the git submodule analyzer.
func NewGitSubmodule() *GitSubmodule {
	return &GitSubmodule{newMatcher("git_submodule", `^git$`, `submodule\s*(update|init)`)}
}

// Analyze writes one record per submodule reported by git submodule status.
func (g *GitSubmodule) Analyze(ctx context.Context, inv Invocation, env *Env) error {
	git := toolName(inv.FullCmd, "git")
	out, err := env.Runner.Output(ctx, inv.Cwd, git, "submodule", "status", "--recursive")
	if err != nil {
		return fmt.Errorf("listing submodules in %s: %w", inv.Cwd, err)
	}

	for _, line := range strings.Split(out, "\n") {
		sm, ok := ParseSubmoduleStatus(line)
		if !ok {
			continue
		}
		dir := filepath.Join(inv.Cwd, sm.Path)
		err := env.Out.Write(ProvenanceRecord{
			CommitID:      sm.Commit,
			VersionString: sm.Describe,
			URL:           originURL(ctx, env, git, dir),
			Tag:           g.Tag(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SubmoduleStatus is one line of git submodule status.
type SubmoduleStatus struct {
	Commit   string
	Path     string
	Describe string
}

// ParseSubmoduleStatus parses lines like "+abc1234 libs/foo (v1.2.3)".
// Uninitialized submodules ("-" prefix) and blank lines are rejected.
func ParseSubmoduleStatus(line string) (SubmoduleStatus, bool) {
	if line == "" || strings.HasPrefix(line, "-") {
		return SubmoduleStatus{}, false
	}
	// Status prefix: ' ' in sync, '+' checked out at another commit, 'U' conflicts.
	fields := strings.Fields(strings.TrimLeft(line, " +U"))
	if len(fields) < 2 {
		return SubmoduleStatus{}, false
	}

	sm := SubmoduleStatus{Commit: fields[0], Path: fields[1]}
	if len(fields) > 2 {
		sm.Describe = strings.TrimSuffix(strings.TrimPrefix(strings.Join(fields[2:], " "), "("), ")")
	}
	return sm, true
}

// originURL returns the origin remote of the repository at dir, or "" if it has none.
func originURL(ctx context.Context, env *Env, git, dir string) string {
	url, err := env.Runner.Output(ctx, dir, git, "config", "--get", "remote.origin.url")
	if err != nil {
		env.Logger.Debug("no origin remote", logging.Dir(dir))
		return ""
	}
	return strings.TrimSpace(url)
}
