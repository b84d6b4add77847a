// Package procmeta reads process metadata from /proc.
//
// Table answers point queries against the live process table: parent pid,
// command line, working directory, ancestry, and command line scans.
//
// Manager keeps a bounded pid -> parent cache fed by fork notifications so
// that ancestry can still be reported for processes whose parents have
// already exited by the time an exec is observed.
package procmeta
