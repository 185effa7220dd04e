package session

import (
	"testing"

	"github.com/algorand/avm-trace-dap/exectree"
	"github.com/algorand/avm-trace-dap/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTwoTxnTree builds: Group -> [Txn0 -> AppCall(3 events, event 1
// spawns an inner group with one AppCall of 2 events), Txn1 -> AppCall(2
// events)].
func buildTwoTxnTree(t *testing.T) []*exectree.Frame {
	t.Helper()

	innerHash := trace.HashProgram(bytesOfB(9))
	outerHash := trace.HashProgram(bytesOfB(1))
	secondHash := trace.HashProgram(bytesOfB(2))

	assets := &trace.Assets{
		Groups: []trace.TxnGroup{
			{
				Txns: []trace.ExecTrace{
					{
						ApprovalProgramHash: outerHash,
						ApprovalProgramTrace: []trace.OpcodeEvent{
							{PC: 0},
							{PC: 1, SpawnedInners: []trace.ExecTrace{
								{ApprovalProgramHash: innerHash, ApprovalProgramTrace: []trace.OpcodeEvent{{PC: 0}, {PC: 1}}},
							}},
							{PC: 2},
						},
					},
					{
						ApprovalProgramHash: secondHash,
						ApprovalProgramTrace: []trace.OpcodeEvent{
							{PC: 0}, {PC: 1},
						},
					},
				},
			},
		},
	}

	roots, err := exectree.Build(assets)
	require.NoError(t, err)
	return roots
}

func bytesOfB(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestStepInDescendsIntoSpawnedInner(t *testing.T) {
	roots := buildTwoTxnTree(t)
	s := New(roots, newNopSourceIndex())
	_, ok := s.Launch(true)
	require.True(t, ok)

	// entry: outer event 0
	f, e := s.Cursor().Leaf()
	assert.Equal(t, 0, f.Events[e].PC)

	// step-in: outer event 1 (the spawning event itself is visited first)
	_, ok = s.StepIn()
	require.True(t, ok)
	f, e = s.Cursor().Leaf()
	assert.Equal(t, 1, f.Events[e].PC)

	// step-in again: descends into inner group's first event
	_, ok = s.StepIn()
	require.True(t, ok)
	f, e = s.Cursor().Leaf()
	assert.Equal(t, 0, f.Events[e].PC)
	// outer path (Group, Txn0, AppCall) plus inner path (Group, Txn0, AppCall)
	assert.Equal(t, 6, s.Cursor().Depth())
}

func TestStepOverSkipsSpawnedInner(t *testing.T) {
	roots := buildTwoTxnTree(t)
	s := New(roots, newNopSourceIndex())
	s.Launch(true)

	_, ok := s.StepOver() // from outer event 0 -> outer event 1
	require.True(t, ok)
	f, e := s.Cursor().Leaf()
	assert.Equal(t, 1, f.Events[e].PC)

	_, ok = s.StepOver() // from outer event 1 (has spawn) -> outer event 2, not the inner
	require.True(t, ok)
	f, e = s.Cursor().Leaf()
	assert.Equal(t, 2, f.Events[e].PC)
	assert.Equal(t, 3, s.Cursor().Depth()) // still in the outer AppCall frame, not descended
}

func TestStepInThenStepBackRoundTrips(t *testing.T) {
	roots := buildTwoTxnTree(t)
	s := New(roots, newNopSourceIndex())
	s.Launch(true)

	s.StepIn() // -> outer event 1
	before := s.Cursor().path[len(s.Cursor().path)-1]

	s.StepIn() // descend into inner
	_, ok := s.StepBack()
	require.True(t, ok)

	after := s.Cursor().path[len(s.Cursor().path)-1]
	assert.Equal(t, before.frame, after.frame)
	assert.Equal(t, before.event, after.event)
	assert.Equal(t, 3, s.Cursor().Depth())
}

func TestStepOutLandsAfterFrame(t *testing.T) {
	roots := buildTwoTxnTree(t)
	s := New(roots, newNopSourceIndex())
	s.Launch(true)

	s.StepIn() // outer event 1
	s.StepIn() // inner event 0

	_, ok := s.StepOut()
	require.True(t, ok)
	f, e := s.Cursor().Leaf()
	// should land back in outer frame at event 2 (after the spawning event)
	assert.Equal(t, 2, f.Events[e].PC)
}

func TestStepInThroughEndOfTraceTerminates(t *testing.T) {
	roots := buildTwoTxnTree(t)
	s := New(roots, newNopSourceIndex())
	s.Launch(true)

	for i := 0; i < 10 && s.State != Terminated; i++ {
		s.StepIn()
	}
	assert.Equal(t, Terminated, s.State)
}

// newNopSourceIndex builds an empty SourceIndex with no programs — fine
// for tests that only exercise cursor movement, not breakpoint matching.
func newNopSourceIndex() *SourceIndex {
	idx, _ := BuildSourceIndex(&trace.Assets{Programs: nil})
	return idx
}
