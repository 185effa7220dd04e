// Package state rebuilds the AVM stack, scratch registers, and
// per-application global/local/box state at any point in a program
// frame's opcode event sequence by replaying deltas forward from the
// frame's entry, rather than storing a snapshot per event.
package state

import (
	"github.com/algorand/avm-trace-dap/avm"
	"github.com/algorand/avm-trace-dap/exectree"
	"github.com/algorand/avm-trace-dap/trace"
)

// AppState is one application's on-chain state as visible at a cursor:
// its global key-values, its box key-values, and its per-account local
// key-values.
type AppState struct {
	Global *avm.ByteMap
	Box    *avm.ByteMap
	Local  map[string]*avm.ByteMap // keyed by account public key, as a string
}

func newAppState() *AppState {
	return &AppState{
		Global: avm.NewByteMap(),
		Box:    avm.NewByteMap(),
		Local:  make(map[string]*avm.ByteMap),
	}
}

func (s *AppState) localFor(account []byte) *avm.ByteMap {
	key := string(account)
	m, ok := s.Local[key]
	if !ok {
		m = avm.NewByteMap()
		s.Local[key] = m
	}
	return m
}

// Reconstructed is the full projection C4 produces for a stop: the
// evaluation stack (bottom to top), the sparse scratch map, and the
// state of every application touched anywhere in the transaction group
// up to and including the current cursor.
type Reconstructed struct {
	Stack   []avm.Value
	Scratch map[uint8]avm.Value
	Apps    map[uint64]*AppState
}

func newReconstructed() *Reconstructed {
	return &Reconstructed{
		Scratch: make(map[uint8]avm.Value),
		Apps:    make(map[uint64]*AppState),
	}
}

func (r *Reconstructed) appFor(id uint64) *AppState {
	a, ok := r.Apps[id]
	if !ok {
		a = newAppState()
		r.Apps[id] = a
	}
	return a
}

// Reconstruct replays frame's events [0, eventIndex] (inclusive) from an
// empty stack/scratch, plus global/local/box state inherited from the
// enclosing call's view (appState, which may be nil for a frame with no
// enclosing state — the top-level group). eventIndex may be -1 to mean
// "before the first event" (the frame's entry state).
//
// The result is a pure function of frame, appState and eventIndex: equal
// inputs always yield byte-for-byte equal output, satisfying the
// replay-determinism guarantee the stepping cursor depends on.
func Reconstruct(frame *exectree.Frame, appState map[uint64]*AppState, eventIndex int) *Reconstructed {
	r := newReconstructed()
	for id, app := range appState {
		r.Apps[id] = cloneAppState(app)
	}

	if !frame.IsProgram() {
		return r
	}

	for i := 0; i <= eventIndex && i < len(frame.Events); i++ {
		applyEvent(r, frame.Events[i])
	}

	return r
}

func cloneAppState(a *AppState) *AppState {
	clone := newAppState()
	clone.Global = a.Global.Clone()
	clone.Box = a.Box.Clone()
	for acct, m := range a.Local {
		clone.Local[acct] = m.Clone()
	}
	return clone
}

func applyEvent(r *Reconstructed, ev trace.OpcodeEvent) {
	if ev.StackPopCount > 0 {
		n := ev.StackPopCount
		if n > len(r.Stack) {
			n = len(r.Stack)
		}
		r.Stack = r.Stack[:len(r.Stack)-n]
	}
	r.Stack = append(r.Stack, ev.StackAdditions...)

	for _, sc := range ev.ScratchChanges {
		r.Scratch[sc.Slot] = sc.Value
	}

	for _, d := range ev.StateChanges {
		applyDelta(r, d)
	}
}

func applyDelta(r *Reconstructed, d trace.Delta) {
	app := r.appFor(d.AppID)
	switch d.Kind {
	case trace.GlobalWrite:
		app.Global.Set(d.Key, valueBytes(d.Value))
	case trace.GlobalDelete:
		app.Global.Delete(d.Key)
	case trace.LocalWrite:
		app.localFor(d.Account).Set(d.Key, valueBytes(d.Value))
	case trace.LocalDelete:
		app.localFor(d.Account).Delete(d.Key)
	case trace.BoxWrite:
		app.Box.Set(d.Key, valueBytes(d.Value))
	case trace.BoxDelete:
		app.Box.Delete(d.Key)
	}
}

// valueBytes gives ByteMap a byte representation of an AvmValue: a
// 1-byte tag (0 for bytes, 1 for uint) followed by the raw bytes or the
// uint's 8-byte big-endian encoding, so DecodeStateValue can recover
// the original avm.Value for display.
func valueBytes(v avm.Value) []byte {
	// Values in global/local/box state are always either AVM uint64
	// (8-byte big-endian) or raw bytes. The tag is stored in-band via a
	// 1-byte prefix so DecodeStateValue can recover the original
	// avm.Value.
	if v.Kind == avm.KindUint {
		b := make([]byte, 9)
		b[0] = 1
		putUint64BE(b[1:], v.Uint)
		return b
	}
	b := make([]byte, 1+len(v.Bytes))
	b[0] = 0
	copy(b[1:], v.Bytes)
	return b
}

// DecodeStateValue is the inverse of valueBytes, used when rendering a
// ByteMap entry back out to a tagged AvmValue for display.
func DecodeStateValue(stored []byte) avm.Value {
	if len(stored) == 0 {
		return avm.FromBytes(nil)
	}
	tag, rest := stored[0], stored[1:]
	if tag == 1 && len(rest) == 8 {
		return avm.FromUint(getUint64BE(rest))
	}
	return avm.FromBytes(rest)
}

func putUint64BE(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64BE(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
