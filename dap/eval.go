package dap

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/algorand/avm-trace-dap/avm"
	"github.com/algorand/avm-trace-dap/state"
	"github.com/google/go-dap"
	"github.com/google/shlex"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var evalExpr = regexp.MustCompile(`^(stack|scratch)\[(-?\d+)\]$`)

// Evaluate implements the two hover expression grammars the adapter
// advertises: stack[<signed int>] and scratch[<0..=255>]. An
// out-of-range index is never an adapter-level error: it resolves to a
// human-readable string in the response body, exactly as a valid index
// would.
func (d *Adapter[C]) Evaluate(c Context, req *dap.EvaluateRequest, resp *dap.EvaluateResponse) error {
	tokens, err := shlex.Split(req.Arguments.Expression)
	if err != nil {
		return errors.Wrap(err, "cannot parse expression")
	}
	if len(tokens) != 1 {
		resp.Body.Result = fmt.Sprintf("unrecognized expression: %q", req.Arguments.Expression)
		return nil
	}

	m := evalExpr.FindStringSubmatch(tokens[0])
	if m == nil {
		resp.Body.Result = fmt.Sprintf("unrecognized expression: %q", tokens[0])
		return nil
	}

	var retErr error
	cmd := d.evalCommands(req, resp, &retErr)
	// "--" keeps a negative index such as "-1" from being parsed as a flag
	cmd.SetArgs([]string{m[1], "--", m[2]})
	cmd.SetErr(&discardWriter{})
	if err := cmd.Execute(); err != nil {
		return err
	}
	return retErr
}

type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (d *Adapter[C]) evalCommands(req *dap.EvaluateRequest, resp *dap.EvaluateResponse, retErr *error) *cobra.Command {
	root := &cobra.Command{SilenceErrors: true, SilenceUsage: true}

	stackCmd := &cobra.Command{
		Use:  "stack",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				*retErr = err
				return nil
			}
			resp.Body.Result = d.evalStack(req.Arguments.FrameId, idx)
			return nil
		},
	}

	scratchCmd := &cobra.Command{
		Use:  "scratch",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				*retErr = err
				return nil
			}
			resp.Body.Result = d.evalScratch(req.Arguments.FrameId, idx)
			return nil
		},
	}

	root.AddCommand(stackCmd, scratchCmd)
	return root
}

func (d *Adapter[C]) evalStack(frameID, idx int) string {
	r, ok := d.reconstructedForFrame(frameID)
	if !ok {
		return "no paused execution state"
	}

	n := len(r.Stack)
	pos := idx
	if pos < 0 {
		pos = n + pos
	}
	if pos < 0 || pos >= n {
		return fmt.Sprintf("stack[%d] %s", idx, avm.ErrOutOfRange)
	}
	return r.Stack[pos].String()
}

func (d *Adapter[C]) evalScratch(frameID, idx int) string {
	if idx < 0 || idx > 255 {
		return fmt.Sprintf("scratch[%d] %s", idx, avm.ErrOutOfRange)
	}

	r, ok := d.reconstructedForFrame(frameID)
	if !ok {
		return "no paused execution state"
	}

	v, ok := r.Scratch[uint8(idx)]
	if !ok {
		return avm.FromUint(0).String()
	}
	return v.String()
}

// reconstructedForFrame resolves a stack-frame id (as minted by
// buildStackTrace) back to its depth along the current cursor and
// replays state up to that point. frameID 0 (no frame specified, e.g. a
// watch expression evaluated without a hover context) defaults to the
// deepest frame.
func (d *Adapter[C]) reconstructedForFrame(frameID int) (*state.Reconstructed, bool) {
	if d.sess == nil || d.sess.Cursor() == nil {
		return nil, false
	}
	cur := d.sess.Cursor()

	depth := cur.Depth() - 1
	if frameID > 0 {
		d.framesMu.Lock()
		info, ok := d.frames[frameID]
		d.framesMu.Unlock()
		if !ok {
			return nil, false
		}
		depth = info.depth
	}
	if depth < 0 || depth >= cur.Depth() {
		return nil, false
	}

	return reconstructAt(cur, depth), true
}
