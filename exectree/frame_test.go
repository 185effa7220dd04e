package exectree

import (
	"testing"

	"github.com/algorand/avm-trace-dap/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSimpleGroup(t *testing.T) {
	lsigHash := trace.HashProgram(bytesOf(1))
	appHashD := trace.HashProgram(bytesOf(2))

	group := trace.TxnGroup{
		Txns: []trace.ExecTrace{
			{
				LogicSigHash:        lsigHash,
				LogicSigTrace:       []trace.OpcodeEvent{{PC: 0}, {PC: 1}},
				ApprovalProgramHash: appHashD,
				ApprovalProgramTrace: []trace.OpcodeEvent{
					{PC: 0}, {PC: 1}, {PC: 2},
				},
			},
		},
	}

	roots, err := Build(&trace.Assets{Groups: []trace.TxnGroup{group}})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	root := roots[0]
	assert.Equal(t, KindTransactionGroup, root.Kind)
	require.Len(t, root.Children, 1)

	txn := root.Children[0]
	assert.Equal(t, KindTransaction, txn.Kind)
	require.Len(t, txn.Children, 2)

	assert.Equal(t, KindLogicSig, txn.Children[0].Kind)
	assert.Len(t, txn.Children[0].Events, 2)

	assert.Equal(t, KindAppCall, txn.Children[1].Kind)
	assert.Len(t, txn.Children[1].Events, 3)
}

func TestBuildSpawnedInners(t *testing.T) {
	innerAppHash := trace.HashProgram(bytesOf(5))
	outerAppHash := trace.HashProgram(bytesOf(6))

	group := trace.TxnGroup{
		Txns: []trace.ExecTrace{
			{
				ApprovalProgramHash: outerAppHash,
				ApprovalProgramTrace: []trace.OpcodeEvent{
					{PC: 0},
					{
						PC: 1,
						SpawnedInners: []trace.ExecTrace{
							{ApprovalProgramHash: innerAppHash, ApprovalProgramTrace: []trace.OpcodeEvent{{PC: 0}}},
						},
					},
				},
			},
		},
	}

	roots, err := Build(&trace.Assets{Groups: []trace.TxnGroup{group}})
	require.NoError(t, err)

	app := roots[0].Children[0].Children[0]
	require.NotNil(t, app.SpawnedInners)
	inner, ok := app.SpawnedInners[1]
	require.True(t, ok)
	assert.Equal(t, KindTransactionGroup, inner.Kind)
	require.Len(t, inner.Children, 1)
	assert.Equal(t, innerAppHash, inner.Children[0].Children[0].Program)
}

func bytesOf(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}
