package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opensourceways/sbom-tracer/internal/logging"
)

// Gradle stages gradle build definitions from the project tree.
type Gradle struct{ matcher }

// NewGradle creates the analyzer for direct gradle invocations.
func NewGradle() *Gradle {
	return &Gradle{newMatcher("gradle", `^gradle$`, `.*`)}
}

// Analyze copies gradle definitions below the working directory.
func (g *Gradle) Analyze(_ context.Context, inv Invocation, env *Env) error {
	_, err := CopyDefinitionFilesRecursive(inv.Cwd, env.DefinitionDir(), GradleDefinitions, env.Logger)
	return err
}

// GradleWrapper is Gradle for builds started through gradlew.
type GradleWrapper struct{ matcher }

// NewGradleWrapper creates the analyzer for the gradle wrapper's java process.
func NewGradleWrapper() *GradleWrapper {
	return &GradleWrapper{newMatcher("gradlew", `^java$`, `gradle\.wrapper\.GradleWrapperMain`)}
}

// Analyze copies gradle definitions below the working directory.
func (g *GradleWrapper) Analyze(_ context.Context, inv Invocation, env *Env) error {
	_, err := CopyDefinitionFilesRecursive(inv.Cwd, env.DefinitionDir(), GradleDefinitions, env.Logger)
	return err
}

// Maven stages the pom of every module in the reactor.
type Maven struct{ matcher }

// NewMaven creates the maven analyzer.
func NewMaven() *Maven {
	return &Maven{newMatcher("maven", `^mvn$`, `.*`)}
}

// Analyze asks maven for each module's base directory and copies its pom.
func (m *Maven) Analyze(ctx context.Context, inv Invocation, env *Env) error {
	mvn := toolName(inv.FullCmd, "mvn")
	out, err := env.Runner.Output(ctx, inv.Cwd, mvn, "-q", "--also-make", "exec:exec", "-Dexec.executable=pwd")
	if err != nil {
		return fmt.Errorf("listing maven modules in %s: %w", inv.Cwd, err)
	}

	modules := ModuleDirs(out)
	env.Logger.Debug("maven modules", logging.Dir(inv.Cwd), logging.Count(len(modules)))

	var errs []error
	for _, dir := range modules {
		if _, err := CopyDefinitionFiles(dir, env.DefinitionDir(), MavenDefinitions, env.Logger); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ModuleDirs keeps the absolute paths from maven's exec output.
func ModuleDirs(out string) []string {
	var dirs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "/") || strings.HasPrefix(line, `\`) {
			dirs = append(dirs, line)
		}
	}
	return dirs
}

// Pip stages python dependency declarations for setup.py driven installs.
type Pip struct{ matcher }

// NewPip creates the python analyzer.
func NewPip() *Pip {
	return &Pip{newMatcher("pip", `^python((2|3)?|(2|3)+[\d.]+)$`, `setup\.py`)}
}

// Analyze copies requirement files and setup.py from the working directory.
func (p *Pip) Analyze(_ context.Context, inv Invocation, env *Env) error {
	_, err := CopyDefinitionFiles(inv.Cwd, env.DefinitionDir(), PythonDefinitions, env.Logger)
	return err
}
