// Package session implements the stepping cursor: a path from the root
// execution-tree frame to a leaf program frame plus an index into that
// frame's opcode events, and the step-in / step-over / step-out /
// continue operations (forward and reverse) that advance or rewind it.
package session

import "github.com/algorand/avm-trace-dap/exectree"

// cursorEntry is one (frame, event-index) pair on the cursor's path
// from the root to the currently-executing leaf.
type cursorEntry struct {
	frame *exectree.Frame
	event int // index into frame.Events; meaningless for non-program frames
}

// Cursor is a stack of (frame, event-index) pairs: the root-to-leaf
// path the session is currently stopped at. The leaf (top of stack) is
// always a program frame (LogicSig or AppCall); ancestors are
// TransactionGroup/Transaction frames included only to make step-out
// and stack-trace presentation simple.
type Cursor struct {
	path []cursorEntry
}

// Leaf returns the frame and event index the cursor currently points
// at.
func (c *Cursor) Leaf() (*exectree.Frame, int) {
	top := c.path[len(c.path)-1]
	return top.frame, top.event
}

// Depth returns the number of frames on the path, root to leaf
// inclusive.
func (c *Cursor) Depth() int {
	return len(c.path)
}

// FrameAt returns the frame at depth i (0 = root).
func (c *Cursor) FrameAt(i int) *exectree.Frame {
	return c.path[i].frame
}

// EventAt returns the event index at depth i (0 = root).
func (c *Cursor) EventAt(i int) int {
	return c.path[i].event
}

// clone produces an independent copy whose path can be mutated without
// affecting the original.
func (c *Cursor) clone() *Cursor {
	path := make([]cursorEntry, len(c.path))
	copy(path, c.path)
	return &Cursor{path: path}
}

// newCursorAtEntry builds a cursor positioned at the very first opcode
// event reachable from root, descending through TransactionGroup/
// Transaction frames to the first LogicSig/AppCall frame with at least
// one event.
func newCursorAtEntry(root *exectree.Frame) *Cursor {
	return &Cursor{path: firstEventPath(root)}
}

// firstEventPath returns the root-to-leaf path to the first program
// frame (in child order) that has at least one event, or nil if frame
// has no reachable events at all.
func firstEventPath(frame *exectree.Frame) []cursorEntry {
	if frame.IsProgram() {
		if len(frame.Events) == 0 {
			return nil
		}
		return []cursorEntry{{frame: frame, event: 0}}
	}
	for _, child := range frame.Children {
		if sub := firstEventPath(child); sub != nil {
			return append([]cursorEntry{{frame: frame, event: 0}}, sub...)
		}
	}
	return nil
}
