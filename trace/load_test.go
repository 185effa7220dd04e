package trace

import (
	"encoding/base64"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(b byte) string {
	h := make([]byte, 32)
	for i := range h {
		h[i] = b
	}
	return base64.StdEncoding.EncodeToString(h)
}

func TestLoadMinimal(t *testing.T) {
	sources := `{
		"txn-group-sources": [
			{"hash": "` + testHash(1) + `", "filename": "state-changes.teal", "source-map": {"version": 3, "sources": ["state-changes.teal"], "mappings": ""}}
		]
	}`

	sim := `{
		"txn-groups": [
			{
				"txn-results": [
					{
						"exec-trace": {
							"approval-program-hash": "` + testHash(1) + `",
							"approval-program-trace": [
								{"pc": 1, "stack-additions": [{"type": 2, "uint": 10}]},
								{"pc": 2, "stack-pop-count": 1}
							]
						}
					}
				]
			}
		]
	}`

	assets, err := Load([]byte(sim), []byte(sources))
	require.NoError(t, err)
	require.Len(t, assets.Groups, 1)
	require.Len(t, assets.Groups[0].Txns, 1)

	events := assets.Groups[0].Txns[0].ApprovalProgramTrace
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].PC)
	require.Len(t, events[0].StackAdditions, 1)
	assert.Equal(t, uint64(10), events[0].StackAdditions[0].Uint)
	assert.Equal(t, 1, events[1].StackPopCount)
}

func TestLoadMissingSourceFails(t *testing.T) {
	sources := `{"txn-group-sources": []}`
	sim := `{
		"txn-groups": [
			{"txn-results": [{"exec-trace": {"approval-program-hash": "` + testHash(9) + `", "approval-program-trace": []}}]}
		]
	}`

	_, err := Load([]byte(sim), []byte(sources))
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, MissingSource, terr.Kind)
}

func TestLoadBadTraceOnGarbageJSON(t *testing.T) {
	_, err := Load([]byte("not json"), []byte(`{"txn-group-sources":[]}`))
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, BadTrace, terr.Kind)
}

func TestLoadLargeUintAsString(t *testing.T) {
	sources := `{"txn-group-sources": [{"hash": "` + testHash(2) + `", "filename": "x.teal", "source-map": {"version":3,"sources":["x.teal"],"mappings":""}}]}`
	sim := `{
		"txn-groups": [{"txn-results": [{"exec-trace": {
			"approval-program-hash": "` + testHash(2) + `",
			"approval-program-trace": [{"pc": 0, "stack-additions": [{"type": 2, "uint": "18446744073709551615"}]}]
		}}]}]
	}`

	assets, err := Load([]byte(sim), []byte(sources))
	require.NoError(t, err)
	v := assets.Groups[0].Txns[0].ApprovalProgramTrace[0].StackAdditions[0]
	assert.Equal(t, uint64(18446744073709551615), v.Uint)
}

func TestLoadSpawnedInners(t *testing.T) {
	sources := `{"txn-group-sources": [
		{"hash": "` + testHash(3) + `", "filename": "outer.teal", "source-map": {"version":3,"sources":["outer.teal"],"mappings":""}},
		{"hash": "` + testHash(4) + `", "filename": "inner.teal", "source-map": {"version":3,"sources":["inner.teal"],"mappings":""}}
	]}`
	sim := `{
		"txn-groups": [{"txn-results": [{"exec-trace": {
			"approval-program-hash": "` + testHash(3) + `",
			"approval-program-trace": [
				{"pc": 5, "spawned-inners": [
					{"approval-program-hash": "` + testHash(4) + `", "approval-program-trace": [{"pc": 0}]}
				]}
			]
		}}]}]
	}`

	assets, err := Load([]byte(sim), []byte(sources))
	require.NoError(t, err)
	ev := assets.Groups[0].Txns[0].ApprovalProgramTrace[0]
	require.Len(t, ev.SpawnedInners, 1)
	assert.Equal(t, testHashDigest(t, 4), ev.SpawnedInners[0].ApprovalProgramHash.String())
}

func testHashDigest(t *testing.T, b byte) string {
	t.Helper()
	h := make([]byte, 32)
	for i := range h {
		h[i] = b
	}
	return digest.NewDigestFromBytes(SHA512_256, h).String()
}
