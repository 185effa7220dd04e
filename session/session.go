package session

import (
	"github.com/algorand/avm-trace-dap/exectree"
)

// State is the session's lifecycle state.
type State int

const (
	Uninitialized State = iota
	Configuring
	ReadyToLaunch
	Stopped
	Running
	Terminated
)

// StopReason accompanies every halt.
type StopReason int

const (
	ReasonEntry StopReason = iota
	ReasonStep
	ReasonBreakpoint
	ReasonException
)

func (r StopReason) String() string {
	switch r {
	case ReasonEntry:
		return "entry"
	case ReasonStep:
		return "step"
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonException:
		return "exception"
	default:
		return "unknown"
	}
}

// Session owns the cursor and drives it forward/backward at the
// granularities the DAP surface exposes. It holds no locks: callers
// (the dap package) guarantee only one goroutine ever touches a given
// Session, matching the single-threaded cooperative scheduling model.
type Session struct {
	State State

	roots []*exectree.Frame
	index *SourceIndex
	bps   *BreakpointSet

	cursor *Cursor
}

// New creates a session over roots (the execution tree's top-level
// transaction groups) using index for breakpoint verification. The
// session starts in ReadyToLaunch; call Launch to position the cursor.
func New(roots []*exectree.Frame, index *SourceIndex) *Session {
	return &Session{
		State: ReadyToLaunch,
		roots: roots,
		index: index,
		bps:   NewBreakpointSet(index),
	}
}

func (s *Session) Breakpoints() *BreakpointSet {
	return s.bps
}

// Roots returns the top-level transaction groups the session was built
// over, for presentation code that needs to tell a top-level group
// frame apart from a nested spawned-inner one.
func (s *Session) Roots() []*exectree.Frame {
	return s.roots
}

// Index returns the source index the session was built with, for
// presentation code that needs to resolve program positions outside of
// the cursor (e.g. breakpointLocations on a file with no active stop).
func (s *Session) Index() *SourceIndex {
	return s.index
}

// Launch positions the cursor at the first opcode event of the first
// top-level group. If stopOnEntry is true the session stops there with
// ReasonEntry; otherwise it behaves as continue.
func (s *Session) Launch(stopOnEntry bool) (StopReason, bool) {
	if len(s.roots) == 0 {
		s.State = Terminated
		return 0, false
	}
	s.cursor = newCursorAtEntry(s.roots[0])
	if s.cursor == nil || s.cursor.Depth() == 0 {
		s.State = Terminated
		return 0, false
	}

	s.State = Stopped
	if stopOnEntry {
		return ReasonEntry, true
	}
	return s.Continue()
}

// Cursor returns the current cursor. Only meaningful in the Stopped
// state.
func (s *Session) Cursor() *Cursor {
	return s.cursor
}

// CurrentLocation resolves the cursor's current leaf to a source
// position, for presentation code that needs to annotate a stop with
// the breakpoint(s) it matched.
func (s *Session) CurrentLocation() (filename string, line, col int, ok bool) {
	return s.currentLocation()
}

// currentLocation resolves the cursor's current leaf to a source
// position.
func (s *Session) currentLocation() (filename string, line, col int, ok bool) {
	frame, event := s.cursor.Leaf()
	pc := frame.Events[event].PC
	return s.index.Locate(frame.Program, pc)
}

// moveTo commits path as the new cursor, or terminates the session if
// path is nil (there was nowhere left to go).
func (s *Session) moveTo(path []cursorEntry) {
	if path == nil {
		s.cursor = nil
		s.State = Terminated
		return
	}
	s.cursor = &Cursor{path: path}
	s.State = Stopped
}

func (s *Session) reasonAtCurrent() StopReason {
	filename, line, col, ok := s.currentLocation()
	if ok && s.bps.MatchAt(filename, line, col) {
		return ReasonBreakpoint
	}
	return ReasonStep
}

// StepIn advances one opcode event, descending into any inner
// transaction group the current event spawned.
func (s *Session) StepIn() (StopReason, bool) {
	if s.State != Stopped {
		return 0, false
	}
	path, _ := stepInPath(s.cursor.path)
	s.moveTo(path)
	if s.State == Terminated {
		return 0, false
	}
	return s.reasonAtCurrent(), true
}

// StepOver advances to the next event in the current frame, skipping
// over anything the current event spawns.
func (s *Session) StepOver() (StopReason, bool) {
	if s.State != Stopped {
		return 0, false
	}
	path, _ := stepOverPath(s.cursor.path)
	s.moveTo(path)
	if s.State == Terminated {
		return 0, false
	}
	return s.reasonAtCurrent(), true
}

// StepOut finishes the current frame (and anything it spawned) and
// resumes wherever the enclosing context continues.
func (s *Session) StepOut() (StopReason, bool) {
	if s.State != Stopped {
		return 0, false
	}
	path, _ := stepOutPath(s.cursor.path)
	s.moveTo(path)
	if s.State == Terminated {
		return 0, false
	}
	return s.reasonAtCurrent(), true
}

// StepBack is the reverse of StepIn: it lands on exactly the position a
// StepIn from there would have come from.
func (s *Session) StepBack() (StopReason, bool) {
	if s.State != Stopped {
		return 0, false
	}
	path, ok := predecessorOf(s.cursor.path)
	if !ok {
		// already at the first event; stay put.
		return ReasonEntry, true
	}
	s.cursor = &Cursor{path: path}
	s.State = Stopped
	return s.reasonAtCurrent(), true
}

// Continue advances step-in-wise until a verified breakpoint matches or
// the trace ends.
func (s *Session) Continue() (StopReason, bool) {
	if s.State != Stopped {
		return 0, false
	}
	s.State = Running
	for {
		path, ok := stepInPath(s.cursor.path)
		if !ok {
			s.cursor = nil
			s.State = Terminated
			return 0, false
		}
		s.cursor = &Cursor{path: path}
		reason := s.reasonAtCurrent()
		if reason == ReasonBreakpoint {
			s.State = Stopped
			return reason, true
		}
	}
}

// ReverseContinue walks backward until the most recent verified
// breakpoint strictly before the starting cursor, or the start of the
// trace if none is found.
func (s *Session) ReverseContinue() (StopReason, bool) {
	if s.State != Stopped {
		return 0, false
	}
	for {
		path, ok := predecessorOf(s.cursor.path)
		if !ok {
			return ReasonEntry, true
		}
		s.cursor = &Cursor{path: path}
		reason := s.reasonAtCurrent()
		if reason == ReasonBreakpoint {
			s.State = Stopped
			return reason, true
		}
	}
}

// Disconnect terminates the session, releasing the cursor.
func (s *Session) Disconnect() {
	s.cursor = nil
	s.State = Terminated
}
