package state

import (
	"testing"

	"github.com/algorand/avm-trace-dap/avm"
	"github.com/algorand/avm-trace-dap/exectree"
	"github.com/algorand/avm-trace-dap/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructStackPushPop(t *testing.T) {
	frame := &exectree.Frame{
		Kind: exectree.KindAppCall,
		Events: []trace.OpcodeEvent{
			{PC: 0, StackAdditions: []avm.Value{avm.FromUint(10), avm.FromUint(30)}},
			{PC: 1, StackAdditions: []avm.Value{avm.FromBytes([]byte("1!")), avm.FromBytes([]byte("5!"))}},
			{PC: 2, StackPopCount: 1},
		},
	}

	r := Reconstruct(frame, nil, 1)
	require.Len(t, r.Stack, 4)
	assert.Equal(t, uint64(10), r.Stack[0].Uint)
	assert.Equal(t, uint64(30), r.Stack[1].Uint)
	assert.Equal(t, "1!", string(r.Stack[2].Bytes))
	assert.Equal(t, "5!", string(r.Stack[3].Bytes))
	assert.Empty(t, r.Scratch)

	r = Reconstruct(frame, nil, 2)
	require.Len(t, r.Stack, 3)
	assert.Equal(t, "1!", string(r.Stack[2].Bytes))
}

func TestReconstructScratchWrite(t *testing.T) {
	frame := &exectree.Frame{
		Kind: exectree.KindAppCall,
		Events: []trace.OpcodeEvent{
			{PC: 0, StackAdditions: []avm.Value{avm.FromUint(1)}},
			{PC: 1, StackPopCount: 1, ScratchChanges: []trace.ScratchChange{
				{Slot: 1, Value: avm.FromUint(18446744073709551615)},
			}},
		},
	}

	r := Reconstruct(frame, nil, 1)
	assert.Empty(t, r.Stack)
	require.Contains(t, r.Scratch, uint8(1))
	assert.Equal(t, uint64(18446744073709551615), r.Scratch[1].Uint)
}

func TestReconstructGlobalStateWrite(t *testing.T) {
	frame := &exectree.Frame{
		Kind: exectree.KindAppCall,
		Events: []trace.OpcodeEvent{
			{PC: 0, StackAdditions: []avm.Value{avm.FromBytes([]byte("global-int-key")), avm.FromUint(0xdeadbeef)}},
			{
				PC:            1,
				StackPopCount: 2,
				StateChanges: []trace.Delta{
					{Kind: trace.GlobalWrite, AppID: 7, Key: []byte("global-int-key"), Value: avm.FromUint(0xdeadbeef)},
				},
			},
		},
	}

	r := Reconstruct(frame, nil, 0)
	require.Len(t, r.Stack, 2)
	assert.Empty(t, r.Apps[7].Global.Keys())

	r = Reconstruct(frame, nil, 1)
	assert.Empty(t, r.Stack)
	keys := r.Apps[7].Global.Keys()
	require.Len(t, keys, 1)
	raw, ok := r.Apps[7].Global.Get([]byte("global-int-key"))
	require.True(t, ok)
	assert.Equal(t, uint64(0xdeadbeef), DecodeStateValue(raw).Uint)
}

func TestReconstructLocalStatePerAccount(t *testing.T) {
	acctA := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	acctB := []byte("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	frame := &exectree.Frame{
		Kind: exectree.KindAppCall,
		Events: []trace.OpcodeEvent{
			{PC: 0, StateChanges: []trace.Delta{
				{Kind: trace.LocalWrite, AppID: 1, Key: []byte("k"), Value: avm.FromUint(1), Account: acctA},
			}},
			{PC: 1, StateChanges: []trace.Delta{
				{Kind: trace.LocalWrite, AppID: 1, Key: []byte("k"), Value: avm.FromUint(2), Account: acctB},
			}},
		},
	}

	r := Reconstruct(frame, nil, 1)
	a := r.Apps[1]
	vA, ok := a.Local[string(acctA)].Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(1), DecodeStateValue(vA).Uint)

	vB, ok := a.Local[string(acctB)].Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(2), DecodeStateValue(vB).Uint)
}

func TestReconstructInheritsEnclosingAppState(t *testing.T) {
	parent := map[uint64]*AppState{
		1: {Global: avm.NewByteMap(), Box: avm.NewByteMap(), Local: map[string]*avm.ByteMap{}},
	}
	parent[1].Global.Set([]byte("k"), valueBytes(avm.FromUint(5)))

	frame := &exectree.Frame{Kind: exectree.KindAppCall, Events: []trace.OpcodeEvent{{PC: 0}}}
	r := Reconstruct(frame, parent, 0)

	v, ok := r.Apps[1].Global.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, uint64(5), DecodeStateValue(v).Uint)

	// mutating the clone must not mutate the caller's map
	r.Apps[1].Global.Set([]byte("k"), valueBytes(avm.FromUint(99)))
	orig, _ := parent[1].Global.Get([]byte("k"))
	assert.Equal(t, uint64(5), DecodeStateValue(orig).Uint)
}

func TestReconstructEmptyScratchIsEmptyMapNotNil(t *testing.T) {
	frame := &exectree.Frame{Kind: exectree.KindAppCall, Events: []trace.OpcodeEvent{{PC: 0}}}
	r := Reconstruct(frame, nil, 0)
	assert.NotNil(t, r.Scratch)
	assert.Empty(t, r.Scratch)
}

func TestReconstructNonProgramFrameIsEmpty(t *testing.T) {
	frame := &exectree.Frame{Kind: exectree.KindTransactionGroup}
	r := Reconstruct(frame, nil, 5)
	assert.Empty(t, r.Stack)
	assert.Empty(t, r.Scratch)
}
