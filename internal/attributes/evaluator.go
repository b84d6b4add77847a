package attributes

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrInvalidDefinition is returned for a definition not of the form name=expression.
var ErrInvalidDefinition = errors.New("attribute must be name=expression")

// Definition is one named attribute expression.
type Definition struct {
	Name       string
	Expression string
}

// ParseDefinition splits s at its first '=', so the expression may contain more.
func ParseDefinition(s string) (Definition, error) {
	name, expression, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(expression) == "" {
		return Definition{}, fmt.Errorf("%w: %q", ErrInvalidDefinition, s)
	}
	return Definition{Name: name, Expression: expression}, nil
}

// ParseDefinitions parses every entry, reporting all bad ones.
func ParseDefinitions(raw []string) ([]Definition, error) {
	defs := make([]Definition, 0, len(raw))
	var errs []error
	for _, s := range raw {
		d, err := ParseDefinition(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, d)
	}
	return defs, errors.Join(errs...)
}

// Input is the session data expressions are evaluated against.
type Input struct {
	TaskID string
	Shell  string
	Dir    string
	Env    map[string]string
}

func (in Input) vars() map[string]any {
	env := in.Env
	if env == nil {
		env = map[string]string{}
	}
	return map[string]any{
		"task_id": in.TaskID,
		"shell":   in.Shell,
		"dir":     in.Dir,
		"env":     env,
	}
}

// Environ turns os.Environ output into a map. Later duplicates win.
func Environ(kv []string) map[string]string {
	env := make(map[string]string, len(kv))
	for _, entry := range kv {
		if k, v, ok := strings.Cut(entry, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func compile(expression string) (*vm.Program, error) {
	return expr.Compile(expression, expr.Env(Input{}.vars()))
}

// Evaluator holds compiled attribute expressions.
type Evaluator struct {
	defs     []Definition
	programs []*vm.Program
	logger   *zap.Logger
}

// NewEvaluator compiles every definition up front.
func NewEvaluator(defs []Definition, logger *zap.Logger) (*Evaluator, error) {
	programs := make([]*vm.Program, len(defs))
	for i, d := range defs {
		program, err := compile(d.Expression)
		if err != nil {
			return nil, fmt.Errorf("compiling expression for attribute %q: %w", d.Name, err)
		}
		programs[i] = program
	}
	return &Evaluator{defs: defs, programs: programs, logger: logger}, nil
}

// Evaluate returns the attributes for in. An expression that fails at run
// time is logged and contributes nothing.
func (e *Evaluator) Evaluate(in Input) []attribute.KeyValue {
	if len(e.defs) == 0 {
		return nil
	}

	vars := in.vars()
	var attrs []attribute.KeyValue
	for i, d := range e.defs {
		out, err := expr.Run(e.programs[i], vars)
		if err != nil {
			e.logger.Warn("evaluating attribute", zap.String("attribute", d.Name), zap.Error(err))
			continue
		}

		value := reflect.ValueOf(out)
		if value.Kind() != reflect.Map {
			attrs = append(attrs, attribute.String(d.Name, fmt.Sprint(out)))
			continue
		}
		for _, key := range value.MapKeys() {
			name := d.Name + "." + sanitize(fmt.Sprint(key.Interface()))
			attrs = append(attrs, attribute.String(name, fmt.Sprint(value.MapIndex(key).Interface())))
		}
	}
	return attrs
}

// sanitize replaces anything but [A-Za-z0-9_] with '_'.
func sanitize(name string) string {
	b := []byte(name)
	for i, c := range b {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			b[i] = '_'
		}
	}
	return string(b)
}
