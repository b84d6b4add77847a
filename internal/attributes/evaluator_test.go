package attributes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testInput = Input{
	TaskID: "1700000000.000001",
	Shell:  "mvn package",
	Dir:    "/src/app",
	Env:    map[string]string{"CI_JOB": "42", "BRANCH": "main"},
}

func TestParseDefinition(t *testing.T) {
	tests := []struct {
		in      string
		want    Definition
		wantErr bool
	}{
		{in: "job=env[\"CI_JOB\"]", want: Definition{Name: "job", Expression: `env["CI_JOB"]`}},
		{in: `check=task_id == "x"`, want: Definition{Name: "check", Expression: `task_id == "x"`}},
		{in: " spaced =dir", want: Definition{Name: "spaced", Expression: "dir"}},
		{in: "novalue", wantErr: true},
		{in: "=dir", wantErr: true},
		{in: "name=", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDefinition(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDefinition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDefinitions_ReportsEveryBadEntry(t *testing.T) {
	defs, err := ParseDefinitions([]string{"a=dir", "bad", "=x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
	assert.Contains(t, err.Error(), `"=x"`)
	assert.Equal(t, []Definition{{Name: "a", Expression: "dir"}}, defs)
}

func TestEvaluator_Scalars(t *testing.T) {
	e, err := NewEvaluator([]Definition{
		{Name: "ci.job", Expression: `env["CI_JOB"]`},
		{Name: "task", Expression: `task_id`},
		{Name: "maven", Expression: `shell contains "mvn"`},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("ci.job", "42"),
		attribute.String("task", "1700000000.000001"),
		attribute.String("maven", "true"),
	}, e.Evaluate(testInput))
}

func TestEvaluator_MapExpansion(t *testing.T) {
	e, err := NewEvaluator([]Definition{{Name: "vars", Expression: `{"job": env["CI_JOB"], "my-dir": dir}`}}, zap.NewNop())
	require.NoError(t, err)

	assert.ElementsMatch(t, []attribute.KeyValue{
		attribute.String("vars.job", "42"),
		attribute.String("vars.my_dir", "/src/app"),
	}, e.Evaluate(testInput))
}

func TestEvaluator_CompileError(t *testing.T) {
	_, err := NewEvaluator([]Definition{{Name: "broken", Expression: `env[`}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestEvaluator_RuntimeErrorSkipsAttribute(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e, err := NewEvaluator([]Definition{
		{Name: "boom", Expression: `int(dir)`},
		{Name: "ok", Expression: `dir`},
	}, zap.New(core))
	require.NoError(t, err)

	attrs := e.Evaluate(testInput)
	assert.Equal(t, []attribute.KeyValue{attribute.String("ok", "/src/app")}, attrs)
	assert.Equal(t, 1, logs.FilterMessage("evaluating attribute").Len())
}

func TestEvaluator_Empty(t *testing.T) {
	e, err := NewEvaluator(nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, e.Evaluate(testInput))
}

func TestEnviron(t *testing.T) {
	env := Environ([]string{"A=1", "B=x=y", "broken", "A=2", "=hidden"})
	assert.Equal(t, map[string]string{"A": "2", "B": "x=y"}, env)
}
