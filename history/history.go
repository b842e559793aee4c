// Package history keeps bounded undo/redo stacks of serialized document snapshots.
package history

import (
	"bytes"
	"fmt"
)

// DefaultDepth is the number of snapshots kept per direction.
const DefaultDepth = 10

// RestoreFunc applies a snapshot to the live document.
type RestoreFunc func(snapshot []byte) error

// Manager is the undo/redo state machine. The bottom of the undo stack is the
// floor: the initial state, which undo never pops. The top of the undo stack
// always equals the current document. Manager is not safe for concurrent use;
// it is owned by one drawing surface.
type Manager struct {
	depth     int
	undo      [][]byte
	redo      [][]byte // last element is the next redo
	restore   RestoreFunc
	suspended bool
}

// New returns a manager keeping at most depth snapshots per direction.
func New(depth int, restore RestoreFunc) *Manager {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &Manager{depth: depth, restore: restore}
}

// Record pushes a snapshot of the current document. Identical consecutive
// snapshots are collapsed, and while a restore is running nothing is recorded.
// Any successful push invalidates the redo stack. It reports whether the
// snapshot was pushed.
func (m *Manager) Record(snapshot []byte) bool {
	if m.suspended {
		return false
	}
	if n := len(m.undo); n > 0 && bytes.Equal(m.undo[n-1], snapshot) {
		return false
	}
	m.undo = push(m.undo, bytes.Clone(snapshot), m.depth)
	m.redo = nil
	return true
}

// Undo steps back one snapshot. With only the floor left it is a no-op.
func (m *Manager) Undo() (bool, error) {
	if len(m.undo) <= 1 {
		return false, nil
	}
	n := len(m.undo)
	top := m.undo[n-1]
	prev := m.undo[n-2]

	if err := m.apply(prev); err != nil {
		return false, fmt.Errorf("undo: %w", err)
	}
	m.undo = m.undo[:n-1]
	m.redo = push(m.redo, top, m.depth)
	return true, nil
}

// Redo re-applies the most recently undone snapshot. With nothing to redo it
// is a no-op.
func (m *Manager) Redo() (bool, error) {
	n := len(m.redo)
	if n == 0 {
		return false, nil
	}
	next := m.redo[n-1]

	if err := m.apply(next); err != nil {
		return false, fmt.Errorf("redo: %w", err)
	}
	m.redo = m.redo[:n-1]
	m.undo = push(m.undo, next, m.depth)
	return true, nil
}

// Reset drops both stacks. The next Record becomes the new floor.
func (m *Manager) Reset() {
	m.undo = nil
	m.redo = nil
}

// HasFloor reports whether an initial snapshot has been recorded.
func (m *Manager) HasFloor() bool {
	return len(m.undo) > 0
}

// Current returns the snapshot at the top of the undo stack.
func (m *Manager) Current() ([]byte, bool) {
	if len(m.undo) == 0 {
		return nil, false
	}
	return bytes.Clone(m.undo[len(m.undo)-1]), true
}

// UndoLen returns the size of the undo stack, floor included.
func (m *Manager) UndoLen() int { return len(m.undo) }

// RedoLen returns the size of the redo stack.
func (m *Manager) RedoLen() int { return len(m.redo) }

// CanUndo reports whether Undo would change the document.
func (m *Manager) CanUndo() bool { return len(m.undo) > 1 }

// CanRedo reports whether Redo would change the document.
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// Suspended reports whether a restore is in progress.
func (m *Manager) Suspended() bool { return m.suspended }

func (m *Manager) apply(snapshot []byte) error {
	if m.restore == nil {
		return nil
	}
	m.suspended = true
	defer func() { m.suspended = false }()
	return m.restore(bytes.Clone(snapshot))
}

func push(stack [][]byte, snapshot []byte, depth int) [][]byte {
	stack = append(stack, snapshot)
	if over := len(stack) - depth; over > 0 {
		stack = append([][]byte(nil), stack[over:]...)
	}
	return stack
}
