package trace

import (
	"github.com/algorand/avm-trace-dap/avm"
	"github.com/opencontainers/go-digest"
)

// RawSourceMap is the undecoded Source Map v3 structure attached to a
// program in the sources descriptor. The sourcemap package turns this
// into a queryable Index; trace itself never interprets the mappings
// string.
type RawSourceMap struct {
	Version  int      `json:"version"`
	Sources  []string `json:"sources"`
	Mappings string   `json:"mappings"`
}

// ProgramSource is the TEAL text and source map for one traced program,
// keyed by the program's hash.
type ProgramSource struct {
	Hash     digest.Digest
	Filename string
	Text     string
	SourceMap RawSourceMap
}

// DeltaKind tags the six state-mutation shapes a trace can record.
type DeltaKind int

const (
	GlobalWrite DeltaKind = iota
	GlobalDelete
	LocalWrite
	LocalDelete
	BoxWrite
	BoxDelete
)

// Delta is one application-state mutation observed at an opcode event.
// Account is only meaningful for LocalWrite/LocalDelete.
type Delta struct {
	Kind    DeltaKind
	AppID   uint64
	Key     []byte
	Value   avm.Value // zero value for *Delete kinds
	Account []byte    // 32-byte public key, LocalWrite/LocalDelete only
}

// ScratchChange is a single scratch-register write recorded on an
// opcode event.
type ScratchChange struct {
	Slot  uint8
	Value avm.Value
}

// OpcodeEvent is one VM step: the PC it left off at, what it popped and
// pushed, any scratch write, any state deltas, and any inner transaction
// groups it spawned (itxn_submit).
type OpcodeEvent struct {
	PC             int
	StackPopCount  int
	StackAdditions []avm.Value
	ScratchChanges []ScratchChange
	StateChanges   []Delta
	SpawnedInners  []ExecTrace
}

// ExecTrace is the per-transaction trace: its logic-sig program's
// opcode events (if any) and its approval program's opcode events (if
// any). A transaction with neither ran no TEAL (a plain payment, say).
// The two hash fields are zero (empty digest.Digest) when the
// corresponding trace is absent.
type ExecTrace struct {
	LogicSigHash         digest.Digest
	LogicSigTrace        []OpcodeEvent
	ApprovalProgramHash  digest.Digest
	ApprovalProgramTrace []OpcodeEvent
}

// TxnGroup is the list of per-transaction traces that were submitted
// together and evaluated as one atomic group.
type TxnGroup struct {
	Txns []ExecTrace
}

// Assets is the immutable root every other component reads from: the
// transaction groups as traced, and every program's source keyed by
// hash. Built once by Load and never mutated again.
type Assets struct {
	Groups     []TxnGroup
	Programs   map[digest.Digest]*ProgramSource
	PrettyJSON []byte // the simulation response, pretty-printed for synthetic pseudo-file positions
}

// Program looks up a program's source by hash, returning MissingSource
// if the trace refers to a program the sources descriptor never
// mentioned.
func (a *Assets) Program(hash digest.Digest) (*ProgramSource, error) {
	p, ok := a.Programs[hash]
	if !ok {
		return nil, errorf(MissingSource, "no source for program %s", hash)
	}
	return p, nil
}
