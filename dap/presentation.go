package dap

import (
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/algorand/avm-trace-dap/avm"
	"github.com/algorand/avm-trace-dap/exectree"
	"github.com/algorand/avm-trace-dap/session"
	"github.com/algorand/avm-trace-dap/state"
	"github.com/algorand/avm-trace-dap/trace"
	"github.com/google/go-dap"
)

// stackFrameInfo is what a minted frame id resolves back to: the depth
// on the session cursor's path the client asked to inspect, so Scopes
// can reconstruct state as of that frame rather than only the leaf.
type stackFrameInfo struct {
	depth int
}

// variableReferences mints and resolves the ids the DAP variables tree
// uses to lazily expand a node. It is reset on every stop: ids from a
// previous stop are never valid after the cursor has moved.
type variableReferences struct {
	mu     sync.Mutex
	next   int
	byID   map[int]func() []dap.Variable
}

func newVariableReferences() *variableReferences {
	return &variableReferences{byID: make(map[int]func() []dap.Variable)}
}

func (v *variableReferences) New(fn func() []dap.Variable) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.next++
	v.byID[v.next] = fn
	return v.next
}

func (v *variableReferences) Get(id int) []dap.Variable {
	v.mu.Lock()
	fn := v.byID[id]
	v.mu.Unlock()
	if fn == nil {
		return []dap.Variable{}
	}
	vars := fn()
	if vars == nil {
		vars = []dap.Variable{}
	}
	return vars
}

func (v *variableReferences) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.next = 0
	v.byID = make(map[int]func() []dap.Variable)
}

// buildStackTrace renders one dap.StackFrame per entry on cur's path,
// topmost = deepest, minting a fresh frame id for each that d.frames can
// resolve back to a depth for Scopes.
func (d *Adapter[C]) buildStackTrace(cur *session.Cursor, roots []*exectree.Frame, assets *trace.Assets, index *session.SourceIndex) []dap.StackFrame {
	sessionID := d.sessionID
	depth := cur.Depth()
	frames := make([]dap.StackFrame, 0, depth)

	d.framesMu.Lock()
	d.frames = make(map[int]stackFrameInfo, depth)
	d.nextFrameID = 0
	d.framesMu.Unlock()

	for i := depth - 1; i >= 0; i-- {
		f := cur.FrameAt(i)
		id := d.newFrameID(i)

		sf := dap.StackFrame{
			Id:   id,
			Name: frameName(cur, i),
		}

		if f.IsProgram() {
			event := cur.EventAt(i)
			filename, line, col, ok := index.Locate(f.Program, f.Events[event].PC)
			if ok {
				sf.Source = &dap.Source{Name: path.Base(filename), Path: filename}
				sf.Line = line
				sf.Column = col
			}
		} else {
			groupIdx, ok := topLevelGroupIndex(roots, f)
			switch {
			case f.Kind == exectree.KindTransactionGroup && ok:
				filename := pseudoFilename(sessionID, groupIdx)
				line, col, found := locateGroupPosition(assets.PrettyJSON, groupIdx)
				sf.Source = &dap.Source{Name: filename, Path: filename}
				if found {
					sf.Line, sf.Column = line, col
				} else {
					sf.Line, sf.Column = 1, 1
				}
			case f.Kind == exectree.KindTransaction && i > 0:
				parentGroupIdx, pok := topLevelGroupIndex(roots, cur.FrameAt(i-1))
				filename := innerPseudoFilename(sessionID)
				line, col := 1, 1
				if pok {
					filename = pseudoFilename(sessionID, parentGroupIdx)
					if l, c, found := locateTxnPosition(assets.PrettyJSON, parentGroupIdx, f.Index); found {
						line, col = l, c
					}
				}
				sf.Source = &dap.Source{Name: filename, Path: filename}
				sf.Line, sf.Column = line, col
			default:
				// a transaction group spawned by itxn_submit: the JSON
				// it came from is nested under the spawning event's
				// "spawned-inners" array rather than a top-level
				// "txn-groups" entry, so there is no precise position to
				// resolve here.
				filename := innerPseudoFilename(sessionID)
				sf.Source = &dap.Source{Name: filename, Path: filename}
				sf.Line, sf.Column = 1, 1
			}
		}

		frames = append(frames, sf)
	}

	return frames
}

// pseudoFilename and innerPseudoFilename name the synthetic JSON
// pseudo-files stack frames point into, each scoped by sessionID so
// that two concurrently-connected --server sessions never collide on
// the same transaction-group-N.json path in a client that caches
// sources by bare name.
func pseudoFilename(sessionID string, groupIdx int) string {
	return fmt.Sprintf("transaction-group-%s-%d.json", sessionID, groupIdx)
}

func innerPseudoFilename(sessionID string) string {
	return fmt.Sprintf("transaction-group-%s-inner.json", sessionID)
}

func (d *Adapter[C]) newFrameID(depth int) int {
	d.framesMu.Lock()
	defer d.framesMu.Unlock()
	d.nextFrameID++
	id := d.nextFrameID
	d.frames[id] = stackFrameInfo{depth: depth}
	return id
}

func frameName(cur *session.Cursor, depth int) string {
	f := cur.FrameAt(depth)
	switch f.Kind {
	case exectree.KindTransactionGroup:
		return "TransactionGroup"
	case exectree.KindTransaction:
		return fmt.Sprintf("Transaction %d", f.Index)
	case exectree.KindLogicSig:
		return "LogicSig"
	case exectree.KindAppCall:
		return "AppCall"
	default:
		return f.Kind.String()
	}
}

// topLevelGroupIndex reports which of roots (by identity) f is, for
// frames that are top-level transaction groups rather than ones spawned
// by itxn_submit.
func topLevelGroupIndex(roots []*exectree.Frame, f *exectree.Frame) (int, bool) {
	for i, r := range roots {
		if r == f {
			return i, true
		}
	}
	return 0, false
}

// buildScopes returns the two top-level scopes for the stack frame at
// depth, lazily populating their children via refs.
func (d *Adapter[C]) buildScopes(cur *session.Cursor, depth int, refs *variableReferences) []dap.Scope {
	r := reconstructAt(cur, depth)

	return []dap.Scope{
		{
			Name:               "Execution State",
			PresentationHint:   "locals",
			VariablesReference: refs.New(func() []dap.Variable { return executionStateVars(r, refs) }),
		},
		{
			Name:               "On-chain State",
			VariablesReference: refs.New(func() []dap.Variable { return onChainStateVars(r, refs) }),
		},
	}
}

func executionStateVars(r *state.Reconstructed, refs *variableReferences) []dap.Variable {
	return []dap.Variable{
		{
			Name:               "stack",
			Value:              fmt.Sprintf("[%d]", len(r.Stack)),
			VariablesReference: refs.New(func() []dap.Variable { return stackVars(r.Stack, refs) }),
		},
		{
			Name:               "scratch",
			Value:              fmt.Sprintf("[%d]", len(r.Scratch)),
			VariablesReference: refs.New(func() []dap.Variable { return scratchVars(r.Scratch, refs) }),
		},
	}
}

func stackVars(stack []avm.Value, refs *variableReferences) []dap.Variable {
	vars := make([]dap.Variable, len(stack))
	for i, v := range stack {
		vars[i] = avmValueVariable(fmt.Sprintf("%d", i), v, refs)
	}
	return vars
}

func scratchVars(scratch map[uint8]avm.Value, refs *variableReferences) []dap.Variable {
	slots := make([]int, 0, len(scratch))
	for slot := range scratch {
		slots = append(slots, int(slot))
	}
	sort.Ints(slots)

	vars := make([]dap.Variable, 0, len(slots))
	for _, slot := range slots {
		vars = append(vars, avmValueVariable(fmt.Sprintf("%d", slot), scratch[uint8(slot)], refs))
	}
	return vars
}

func avmValueVariable(name string, v avm.Value, refs *variableReferences) dap.Variable {
	variable := dap.Variable{Name: name, Value: v.String()}
	if v.Kind == avm.KindBytes {
		b := v.Bytes
		variable.VariablesReference = refs.New(func() []dap.Variable { return byteValueChildren(b) })
	}
	return variable
}

// byteValueChildren is the flat set of simultaneous renderings a
// byte-string value expands to: hex, base64, ascii (only if printable),
// address (only if 32 bytes), length, and one entry per byte.
func byteValueChildren(b []byte) []dap.Variable {
	r := avm.Render(b)

	vars := []dap.Variable{
		{Name: "hex", Value: r.Hex},
		{Name: "base64", Value: r.Base64},
	}
	if r.IsASCII {
		vars = append(vars, dap.Variable{Name: "ascii", Value: r.ASCII})
	}
	if r.Address != "" {
		vars = append(vars, dap.Variable{Name: "address", Value: r.Address})
	}
	vars = append(vars, dap.Variable{Name: "length", Value: fmt.Sprintf("%d", r.Length)})

	for i, c := range b {
		vars = append(vars, dap.Variable{Name: fmt.Sprintf("%d", i), Value: fmt.Sprintf("%d", c)})
	}
	return vars
}

func onChainStateVars(r *state.Reconstructed, refs *variableReferences) []dap.Variable {
	ids := make([]uint64, 0, len(r.Apps))
	for id := range r.Apps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	vars := make([]dap.Variable, 0, len(ids))
	for _, id := range ids {
		app := r.Apps[id]
		vars = append(vars, dap.Variable{
			Name:               fmt.Sprintf("app %d", id),
			VariablesReference: refs.New(func() []dap.Variable { return appStateVars(app, refs) }),
		})
	}
	return vars
}

func appStateVars(app *state.AppState, refs *variableReferences) []dap.Variable {
	return []dap.Variable{
		{
			Name:               "globalState",
			Value:              fmt.Sprintf("[%d]", app.Global.Len()),
			VariablesReference: refs.New(func() []dap.Variable { return byteMapVars(app.Global, refs) }),
		},
		{
			Name:               "localState",
			Value:              fmt.Sprintf("[%d]", len(app.Local)),
			VariablesReference: refs.New(func() []dap.Variable { return localStateVars(app.Local, refs) }),
		},
		{
			Name:               "boxState",
			Value:              fmt.Sprintf("[%d]", app.Box.Len()),
			VariablesReference: refs.New(func() []dap.Variable { return byteMapVars(app.Box, refs) }),
		},
	}
}

func localStateVars(local map[string]*avm.ByteMap, refs *variableReferences) []dap.Variable {
	accounts := make([]string, 0, len(local))
	for acct := range local {
		accounts = append(accounts, acct)
	}
	sort.Strings(accounts)

	vars := make([]dap.Variable, 0, len(accounts))
	for _, acct := range accounts {
		m := local[acct]
		name := avm.EncodeAddress([]byte(acct))
		if name == "" {
			name = avm.Render([]byte(acct)).Hex
		}
		vars = append(vars, dap.Variable{
			Name:               name,
			Value:              fmt.Sprintf("[%d]", m.Len()),
			VariablesReference: refs.New(func() []dap.Variable { return byteMapVars(m, refs) }),
		})
	}
	return vars
}

func byteMapVars(m *avm.ByteMap, refs *variableReferences) []dap.Variable {
	keys := m.Keys()
	vars := make([]dap.Variable, 0, len(keys))
	for _, k := range keys {
		stored, _ := m.Get(k)
		v := state.DecodeStateValue(stored)
		vars = append(vars, avmValueVariable(keyName(k), v, refs))
	}
	return vars
}

func keyName(k []byte) string {
	if r := avm.Render(k); r.IsASCII {
		return r.ASCII
	}
	return avm.Render(k).Hex
}

// reconstructAt replays everything causally reachable before (and
// including) the stack frame at depth on cur's path: every sibling
// transaction fully, every ancestor program frame's own events up to
// the point it spawned the next frame on the path, and finally the
// target frame's own events up to its current event index.
func reconstructAt(cur *session.Cursor, depth int) *state.Reconstructed {
	var acc map[uint64]*state.AppState

	for i := 0; i <= depth; i++ {
		f := cur.FrameAt(i)
		if i > 0 {
			parent := cur.FrameAt(i - 1)
			if !parent.IsProgram() {
				acc = replayPrecedingSiblings(parent, f, acc)
			}
		}

		if i == depth {
			if f.IsProgram() {
				return state.Reconstruct(f, acc, cur.EventAt(i))
			}
			return state.Reconstruct(f, acc, -1)
		}

		if f.IsProgram() {
			r := state.Reconstruct(f, acc, cur.EventAt(i))
			acc = r.Apps
		}
	}

	// unreachable: the loop always returns at i == depth.
	return state.Reconstruct(cur.FrameAt(depth), acc, -1)
}

// replayPrecedingSiblings fully replays every child of parent that
// comes before target in child order, threading app state forward.
func replayPrecedingSiblings(parent, target *exectree.Frame, acc map[uint64]*state.AppState) map[uint64]*state.AppState {
	for _, child := range parent.Children {
		if child == target {
			return acc
		}
		acc = replayFullFrame(child, acc)
	}
	return acc
}

// replayFullFrame replays frame and everything it spawned to
// completion, for a frame that is entirely in the causal past of the
// current stop.
func replayFullFrame(f *exectree.Frame, acc map[uint64]*state.AppState) map[uint64]*state.AppState {
	if !f.IsProgram() {
		for _, child := range f.Children {
			acc = replayFullFrame(child, acc)
		}
		return acc
	}

	for i := range f.Events {
		r := state.Reconstruct(f, acc, i)
		acc = r.Apps
		if inner, ok := f.SpawnedInners[i]; ok {
			acc = replayFullFrame(inner, acc)
		}
	}
	return acc
}
