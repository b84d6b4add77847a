package procmeta

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize bounds the fork cache.
const DefaultCacheSize = 10240

// forkRecord is the parent a pid had when it was forked. start is the
// child's start time then, or 0 if it could not be read.
type forkRecord struct {
	parent int
	start  uint64
}

// Manager combines the live process table with a bounded cache of parent
// links learned from fork notifications. Safe for concurrent use.
//
// The fork-time parent takes precedence: once a parent exits the kernel
// reparents its children to init or a subreaper, and /proc forgets the
// original link.
type Manager struct {
	table   *Table
	parents *lru.Cache // pid -> forkRecord
}

// NewManager creates a manager over table with a cache of size entries.
func NewManager(table *Table, size int) (*Manager, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating fork cache: %w", err)
	}
	return &Manager{table: table, parents: cache}, nil
}

// RecordFork remembers that child was forked by parent.
func (m *Manager) RecordFork(child, parent int) {
	rec := forkRecord{parent: parent}
	if m.table != nil {
		rec.start, _ = m.table.StartTime(child)
	}
	m.parents.Add(child, rec)
}

// Parent returns the fork-time parent of pid when it is still valid,
// otherwise the parent from the live table.
func (m *Manager) Parent(pid int) (int, bool) {
	if ppid, ok := m.forkParent(pid); ok {
		return ppid, true
	}
	if m.table != nil {
		if ppid := m.table.ParentPID(uint32(pid)); ppid > 0 { //nolint:gosec // pids are positive
			return int(ppid), true
		}
	}
	return 0, false
}

// forkParent returns the cached parent of pid, dropping the entry when pid
// now belongs to a different process.
func (m *Manager) forkParent(pid int) (int, bool) {
	v, ok := m.parents.Get(pid)
	if !ok {
		return 0, false
	}
	rec := v.(forkRecord)
	if rec.start == 0 || m.table == nil {
		return rec.parent, true
	}
	start, live := m.table.StartTime(pid)
	if live && start != rec.start {
		m.parents.Remove(pid)
		return 0, false
	}
	return rec.parent, true
}

// Ancestors returns the ancestry of pid, nearest first.
func (m *Manager) Ancestors(pid int) []int {
	return walkAncestors(pid, m.Parent)
}

// Lookup reads live metadata for pid, with the parent taken from the fork
// cache when it holds a valid entry.
func (m *Manager) Lookup(pid int) (*ProcessMetadata, error) {
	meta, err := m.table.Lookup(pid)
	if err != nil {
		return nil, err
	}
	if ppid, ok := m.Parent(pid); ok {
		meta.Ppid = ppid
	}
	return meta, nil
}
