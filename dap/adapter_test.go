package dap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/algorand/avm-trace-dap/dap/common"
	"github.com/algorand/avm-trace-dap/util/daptest"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// vlqBaseMask/vlqContinue/vlqBase64 and encodeVLQ/mkMapping build a
// minimal V3 source-map mappings string, the same encoding
// session.BuildSourceIndex decodes; used below to give the fixture
// program real, resolvable source positions.
const (
	vlqBaseMask = 31
	vlqContinue = 32
	vlqBase64   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
)

func encodeVLQ(value int) string {
	var result int
	if value < 0 {
		result = ((-value) << 1) | 1
	} else {
		result = value << 1
	}
	var out []byte
	for {
		digit := result & vlqBaseMask
		result >>= 5
		if result > 0 {
			digit |= vlqContinue
		}
		out = append(out, vlqBase64[digit])
		if result == 0 {
			break
		}
	}
	return string(out)
}

func mkMapping(groups ...[4]int) string {
	out := ""
	for i, g := range groups {
		if i > 0 {
			out += ";"
		}
		out += encodeVLQ(g[0]) + encodeVLQ(g[1]) + encodeVLQ(g[2]) + encodeVLQ(g[3])
	}
	return out
}

func testHash(b byte) string {
	h := make([]byte, 32)
	for i := range h {
		h[i] = b
	}
	return base64.StdEncoding.EncodeToString(h)
}

// writeFixtureTrace writes a one-group, one-transaction, two-opcode
// simulation trace and its matching sources descriptor to dir, and
// points the two launch environment variables at them. The program has
// a real source map (event 0 -> line 1, event 1 -> line 2 of
// approval.teal) so StackTrace/Source/breakpoint resolution all have
// something real to chew on.
func writeFixtureTrace(t *testing.T, dir string) {
	t.Helper()

	hash := testHash(7)
	mapping := mkMapping([4]int{0, 0, 1, 0}, [4]int{1, 0, 1, 0})
	text := "int 10\nreturn\n"

	sources := `{"txn-group-sources": [{"hash": "` + hash + `", "filename": "approval.teal", "text": ` +
		mustJSON(t, text) + `, "source-map": {"version": 3, "sources": ["approval.teal"], "mappings": "` + mapping + `"}}]}`

	sim := `{"txn-groups": [{"txn-results": [{"exec-trace": {
		"approval-program-hash": "` + hash + `",
		"approval-program-trace": [
			{"pc": 0, "stack-additions": [{"type": 2, "uint": 10}]},
			{"pc": 1, "stack-pop-count": 1}
		]
	}}]}]}`

	simPath := filepath.Join(dir, "sim.json")
	sourcesPath := filepath.Join(dir, "sources.json")
	require.NoError(t, os.WriteFile(simPath, []byte(sim), 0o600))
	require.NoError(t, os.WriteFile(sourcesPath, []byte(sources), 0o600))

	t.Setenv(simulationResponsePathEnv, simPath)
	t.Setenv(sourcesDescriptionPathEnv, sourcesPath)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// TestLaunchEndToEnd drives a full session over the wire: launch with
// stopOnEntry, inspect the stack trace and source text the entry stop
// resolves to, evaluate an out-of-range stack slot, then continue to the
// end of the trace and observe termination.
func TestLaunchEndToEnd(t *testing.T) {
	writeFixtureTrace(t, t.TempDir())

	adapter, conn, client := NewTestAdapter[common.Config](t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() error {
		_, err := adapter.Start(ctx, conn)
		return err
	})

	var stopped *dap.StoppedEvent
	eg.Go(func() error {
		stopped = client.Launch(t, common.Config{StopOnEntry: true})
		return nil
	})
	require.NoError(t, eg.Wait())

	require.NotNil(t, stopped)
	assert.Equal(t, "entry", stopped.Body.Reason)

	traceResp := <-daptest.DoRequest[*dap.StackTraceResponse](t, client, &dap.StackTraceRequest{
		Request:   dap.Request{Command: "stackTrace"},
		Arguments: dap.StackTraceArguments{ThreadId: 1},
	})
	require.NotNil(t, traceResp)
	require.NotEmpty(t, traceResp.Body.StackFrames)

	frame := traceResp.Body.StackFrames[0]
	require.NotNil(t, frame.Source)
	assert.Equal(t, "approval.teal", frame.Source.Path)
	assert.Equal(t, 1, frame.Line)

	sourceResp := <-daptest.DoRequest[*dap.SourceResponse](t, client, &dap.SourceRequest{
		Request:   dap.Request{Command: "source"},
		Arguments: dap.SourceArguments{Source: &dap.Source{Path: frame.Source.Path}},
	})
	require.NotNil(t, sourceResp)
	assert.Equal(t, "int 10\nreturn\n", sourceResp.Body.Content)

	evalResp := <-daptest.DoRequest[*dap.EvaluateResponse](t, client, &dap.EvaluateRequest{
		Request:   dap.Request{Command: "evaluate"},
		Arguments: dap.EvaluateArguments{Expression: "stack[1000]", FrameId: frame.Id},
	})
	require.NotNil(t, evalResp)
	assert.Equal(t, "stack[1000] out of range", evalResp.Body.Result)

	terminated := make(chan struct{}, 1)
	client.RegisterEvent("terminated", func(dap.EventMessage) {
		select {
		case terminated <- struct{}{}:
		default:
		}
	})

	continueResp := <-daptest.DoRequest[*dap.ContinueResponse](t, client, &dap.ContinueRequest{
		Request: dap.Request{Command: "continue"},
	})
	require.NotNil(t, continueResp)

	select {
	case <-terminated:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminated after continue")
	}
}

func NewTestAdapter[C LaunchConfig](t *testing.T) (*Adapter[C], Conn, *daptest.Client) {
	t.Helper()

	rd1, wr1 := io.Pipe()
	rd2, wr2 := io.Pipe()

	srvConn := NewConn(rd1, wr2)
	t.Cleanup(func() {
		srvConn.Close()
	})

	clientConn := NewConn(rd2, wr1)
	t.Cleanup(func() {
		clientConn.Close()
	})

	adapter := New[C]()
	t.Cleanup(func() { adapter.Stop() })

	client := daptest.NewClient(clientConn)
	return adapter, srvConn, client
}
