// Package attributes evaluates user expressions into attributes and a trace
// id for the spans of a tracing session.
//
// Expressions use the expr language and see:
//
//	task_id  string
//	shell    string             the traced shell text
//	dir      string             directory the shell runs in
//	env      map[string]string  the tracer's environment
//
// A map result is expanded into one attribute per key, named
// "<name>.<key>". A trace id expression whose result is not 32 hex
// characters is hashed with SHA-256 into one.
package attributes
