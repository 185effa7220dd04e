package session

import "github.com/algorand/avm-trace-dap/exectree"

// lastEventPath is the mirror image of firstEventPath: the root-to-leaf
// path to the last event that forward stepping would visit anywhere
// under frame (descending into the last event's spawned inner group
// when it has one, since forward traversal always finishes a spawned
// subtree before moving past the event that spawned it).
func lastEventPath(frame *exectree.Frame) []cursorEntry {
	if frame.IsProgram() {
		if len(frame.Events) == 0 {
			return nil
		}
		last := len(frame.Events) - 1
		if child, ok := frame.SpawnedInners[last]; ok {
			if sub := lastEventPath(child); sub != nil {
				return append([]cursorEntry{{frame: frame, event: last}}, sub...)
			}
		}
		return []cursorEntry{{frame: frame, event: last}}
	}
	for i := len(frame.Children) - 1; i >= 0; i-- {
		if sub := lastEventPath(frame.Children[i]); sub != nil {
			return append([]cursorEntry{{frame: frame, event: 0}}, sub...)
		}
	}
	return nil
}

func clonePath(path []cursorEntry) []cursorEntry {
	out := make([]cursorEntry, len(path))
	copy(out, path)
	return out
}

func indexOfFrame(frames []*exectree.Frame, target *exectree.Frame) int {
	for i, f := range frames {
		if f == target {
			return i
		}
	}
	return -1
}

// advanceWithinProgram resumes programPath's leaf program frame at
// nextEvent if that index is still within the frame, otherwise the
// frame's subtree is finished and execution continues from whatever
// comes after it (finishSubtree).
func advanceWithinProgram(programPath []cursorEntry, nextEvent int) ([]cursorEntry, bool) {
	leafIdx := len(programPath) - 1
	frame := programPath[leafIdx].frame
	if nextEvent < len(frame.Events) {
		newPath := clonePath(programPath)
		newPath[leafIdx].event = nextEvent
		return newPath, true
	}
	return finishSubtree(programPath)
}

// finishSubtree returns the position immediately after path's leaf
// frame has entirely finished executing — the frame itself and
// everything it spawned. It is the forward component of step-out.
func finishSubtree(path []cursorEntry) ([]cursorEntry, bool) {
	if len(path) == 1 {
		return nil, false
	}

	parentPath := path[:len(path)-1]
	parent := parentPath[len(parentPath)-1].frame
	child := path[len(path)-1].frame

	if parent.IsProgram() {
		nextEvent := parentPath[len(parentPath)-1].event + 1
		return advanceWithinProgram(parentPath, nextEvent)
	}

	idx := indexOfFrame(parent.Children, child)
	for i := idx + 1; i < len(parent.Children); i++ {
		if sub := firstEventPath(parent.Children[i]); sub != nil {
			newPath := append(clonePath(parentPath), sub...)
			return newPath, true
		}
	}
	return finishSubtree(parentPath)
}

// predecessorOf returns the position immediately before path in forward
// depth-first traversal order, or (nil, false) if path is already the
// very first reachable position.
func predecessorOf(path []cursorEntry) ([]cursorEntry, bool) {
	last := len(path) - 1
	leaf := path[last]

	if leaf.event > 0 {
		prevEvent := leaf.event - 1
		if child, ok := leaf.frame.SpawnedInners[prevEvent]; ok {
			if sub := lastEventPath(child); sub != nil {
				newPath := clonePath(path[:last])
				newPath = append(newPath, cursorEntry{frame: leaf.frame, event: prevEvent})
				newPath = append(newPath, sub...)
				return newPath, true
			}
		}
		newPath := clonePath(path)
		newPath[last].event = prevEvent
		return newPath, true
	}

	if len(path) == 1 {
		return nil, false
	}

	parentPath := path[:last]
	parent := parentPath[len(parentPath)-1].frame

	if parent.IsProgram() {
		return parentPath, true
	}

	children := parent.Children
	idx := indexOfFrame(children, leaf.frame)
	for i := idx - 1; i >= 0; i-- {
		if sub := lastEventPath(children[i]); sub != nil {
			newPath := append(clonePath(parentPath), sub...)
			return newPath, true
		}
	}
	return predecessorOf(parentPath)
}

// stepInPath is the forward step-in move: descend into a spawned inner
// group if the current event has one, otherwise behave like step-over.
func stepInPath(path []cursorEntry) ([]cursorEntry, bool) {
	last := len(path) - 1
	leaf := path[last]

	if child, ok := leaf.frame.SpawnedInners[leaf.event]; ok {
		if sub := firstEventPath(child); sub != nil {
			return append(clonePath(path), sub...), true
		}
	}
	return stepOverPath(path)
}

// stepOverPath is the forward step-over move: next event in the same
// frame, never descending into a spawned inner group.
func stepOverPath(path []cursorEntry) ([]cursorEntry, bool) {
	last := len(path) - 1
	return advanceWithinProgram(path, path[last].event+1)
}

// stepOutPath is the forward step-out move: finish the current leaf
// frame's entire remaining execution (including anything it spawns)
// and resume wherever the enclosing context continues.
func stepOutPath(path []cursorEntry) ([]cursorEntry, bool) {
	return finishSubtree(path)
}
