// Package exectree builds the nested program-execution tree — the
// transaction group / transaction / logic-sig / app-call / inner-group
// hierarchy — out of the flat per-program opcode traces produced by the
// trace package. The tree is built once at launch and never mutated
// again; parent links are deliberately omitted; callers track a cursor
// as an explicit root-to-leaf stack rather than walking back-pointers.
package exectree

import (
	"github.com/algorand/avm-trace-dap/trace"
	"github.com/opencontainers/go-digest"
)

// Kind identifies which of the four frame shapes a Frame represents.
type Kind int

const (
	KindTransactionGroup Kind = iota
	KindTransaction
	KindLogicSig
	KindAppCall
)

func (k Kind) String() string {
	switch k {
	case KindTransactionGroup:
		return "TransactionGroup"
	case KindTransaction:
		return "Transaction"
	case KindLogicSig:
		return "LogicSig"
	case KindAppCall:
		return "AppCall"
	default:
		return "Unknown"
	}
}

// Frame is one node of the execution tree. Program and Events are only
// meaningful for KindLogicSig/KindAppCall frames; Children is only
// populated for KindTransactionGroup (one child per transaction) and
// KindTransaction (an optional LogicSig child followed by an optional
// AppCall child).
type Frame struct {
	Kind     Kind
	Index    int // ordinal among siblings (transaction index within its group)
	Program  digest.Digest
	Events   []trace.OpcodeEvent
	Children []*Frame

	// SpawnedInners maps an event index in Events to the inner
	// transaction group it spawned (via itxn_submit). Only populated on
	// LogicSig/AppCall frames, and only for events that actually spawned
	// something.
	SpawnedInners map[int]*Frame
}

// IsProgram reports whether f is a LogicSig or AppCall frame — i.e. one
// that owns an opcode event sequence rather than a list of children.
func (f *Frame) IsProgram() bool {
	return f.Kind == KindLogicSig || f.Kind == KindAppCall
}

// Build constructs one root TransactionGroup frame per top-level group
// recorded in assets. In the common case (a single debugged
// transaction group) this returns a single-element slice.
func Build(assets *trace.Assets) ([]*Frame, error) {
	roots := make([]*Frame, 0, len(assets.Groups))
	for _, g := range assets.Groups {
		root, err := buildGroup(g)
		if err != nil {
			return nil, err
		}
		roots = append(roots, root)
	}
	return roots, nil
}

func buildGroup(g trace.TxnGroup) (*Frame, error) {
	group := &Frame{Kind: KindTransactionGroup}
	group.Children = make([]*Frame, 0, len(g.Txns))

	for i, et := range g.Txns {
		txn := &Frame{Kind: KindTransaction, Index: i}

		if et.LogicSigHash != "" {
			lsig, err := buildProgramFrame(KindLogicSig, et.LogicSigHash, et.LogicSigTrace)
			if err != nil {
				return nil, err
			}
			txn.Children = append(txn.Children, lsig)
		}
		if et.ApprovalProgramHash != "" {
			app, err := buildProgramFrame(KindAppCall, et.ApprovalProgramHash, et.ApprovalProgramTrace)
			if err != nil {
				return nil, err
			}
			txn.Children = append(txn.Children, app)
		}

		group.Children = append(group.Children, txn)
	}

	return group, nil
}

func buildProgramFrame(kind Kind, hash digest.Digest, events []trace.OpcodeEvent) (*Frame, error) {
	f := &Frame{Kind: kind, Program: hash, Events: events}

	for i, ev := range events {
		if len(ev.SpawnedInners) == 0 {
			continue
		}
		child, err := buildGroup(trace.TxnGroup{Txns: ev.SpawnedInners})
		if err != nil {
			return nil, err
		}
		if f.SpawnedInners == nil {
			f.SpawnedInners = make(map[int]*Frame)
		}
		f.SpawnedInners[i] = child
	}

	return f, nil
}
