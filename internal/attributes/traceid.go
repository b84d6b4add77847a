package attributes

import (
	"crypto/sha256"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDEvaluator derives the session trace id from an expression, so the
// session can join a trace started elsewhere (a CI pipeline, for instance).
type TraceIDEvaluator struct {
	program *vm.Program
}

// NewTraceIDEvaluator compiles expression. An empty expression yields an
// evaluator that always returns the zero trace id.
func NewTraceIDEvaluator(expression string) (*TraceIDEvaluator, error) {
	if expression == "" {
		return &TraceIDEvaluator{}, nil
	}
	program, err := compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compiling trace-id expression: %w", err)
	}
	return &TraceIDEvaluator{program: program}, nil
}

// Evaluate returns the trace id for in. A result that is not a valid hex
// trace id is hashed into one, and the returned attributes record that.
func (e *TraceIDEvaluator) Evaluate(in Input) (trace.TraceID, []attribute.KeyValue, error) {
	if e.program == nil {
		return trace.TraceID{}, nil, nil
	}

	out, err := expr.Run(e.program, in.vars())
	if err != nil {
		return trace.TraceID{}, nil, fmt.Errorf("evaluating trace-id expression: %w", err)
	}

	result := fmt.Sprint(out)
	if len(result) == 32 {
		if id, err := trace.TraceIDFromHex(result); err == nil {
			return id, nil, nil
		}
	}

	var id trace.TraceID
	sum := sha256.Sum256([]byte(result))
	copy(id[:], sum[:len(id)])
	return id, []attribute.KeyValue{
		attribute.String("sbom_tracer.trace_id_source", result),
	}, nil
}

// SessionParent builds a remote parent for the session spans carrying
// traceID. The parent span id is derived from the task id. It returns the
// zero span context when traceID is zero.
func SessionParent(traceID trace.TraceID, taskID string) trace.SpanContext {
	if !traceID.IsValid() {
		return trace.SpanContext{}
	}
	var spanID trace.SpanID
	sum := sha256.Sum256([]byte(taskID))
	copy(spanID[:], sum[:len(spanID)])
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}
