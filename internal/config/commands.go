package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed default_commands.yml
var defaultCommands []byte

// CommandTable selects which command names are worth analyzing.
type CommandTable struct {
	Commands []string `yaml:"commands"`

	patterns []*regexp.Regexp
}

// DefaultCommandTable returns the built-in table.
func DefaultCommandTable() (*CommandTable, error) {
	return ParseCommandTable(defaultCommands)
}

// LoadCommandTable reads a table from path, or the built-in one when path is empty.
func LoadCommandTable(path string) (*CommandTable, error) {
	if path == "" {
		return DefaultCommandTable()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading command table: %w", err)
	}
	return ParseCommandTable(raw)
}

// ParseCommandTable parses YAML and compiles each entry anchored at both ends.
func ParseCommandTable(raw []byte) (*CommandTable, error) {
	var t CommandTable
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("invalid command table yaml: %w", err)
	}
	if len(t.Commands) == 0 {
		return nil, fmt.Errorf("command table has no commands")
	}

	t.patterns = make([]*regexp.Regexp, 0, len(t.Commands))
	for _, c := range t.Commands {
		re, err := regexp.Compile("^(?:" + c + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid command pattern %q: %w", c, err)
		}
		t.patterns = append(t.patterns, re)
	}
	return &t, nil
}

// Match reports whether cmd is listed.
func (t *CommandTable) Match(cmd string) bool {
	for _, re := range t.patterns {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}
