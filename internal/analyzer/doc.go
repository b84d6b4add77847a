// Package analyzer extracts provenance from build-tool invocations observed
// during a traced session.
//
// Each Analyzer declares which commands it handles. The Dispatcher runs
// every matching Analyzer for an invocation; a failing Analyzer is logged
// and does not affect the others. Results are either ProvenanceRecord lines
// appended to a shared writer or build-definition files copied into the
// session's staging area.
package analyzer
