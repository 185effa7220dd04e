package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sync"
	"time"

	"github.com/algorand/avm-trace-dap/dap/common"
	"github.com/algorand/avm-trace-dap/exectree"
	"github.com/algorand/avm-trace-dap/session"
	"github.com/algorand/avm-trace-dap/trace"
	"github.com/google/go-dap"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// configurationTimeout bounds how long the post-launch goroutine waits
// for configurationDone before proceeding anyway.
const configurationTimeout = time.Second

// simulationResponsePathEnv and sourcesDescriptionPathEnv name the two
// environment variables Launch reads the trace assets from.
const (
	simulationResponsePathEnv = "ALGORAND_SIMULATION_RESPONSE_PATH"
	sourcesDescriptionPathEnv = "ALGORAND_TXN_GROUP_SOURCES_DESCRIPTION_PATH"
)

// Adapter drives one debug session over a single DAP connection: it
// owns the session.Session (cursor, breakpoints, source index) and the
// bookkeeping needed to present it (stack-frame ids, variable
// references).
type Adapter[C LaunchConfig] struct {
	srv *Server
	eg  *errgroup.Group
	cfg common.Config

	initialized   chan struct{}
	started       chan launchResponse[C]
	configuration chan struct{}

	assets *trace.Assets
	sess   *session.Session

	// sessionID scopes the synthetic transaction-group pseudo-file
	// names this adapter hands out, so two sessions accepted by
	// --server never collide on the same path.
	sessionID string

	refs        *variableReferences
	frames      map[int]stackFrameInfo
	framesMu    sync.Mutex
	nextFrameID int
}

type launchResponse[C any] struct {
	Config C
	Error  error
}

func New[C LaunchConfig]() *Adapter[C] {
	d := &Adapter[C]{
		initialized:   make(chan struct{}),
		started:       make(chan launchResponse[C], 1),
		configuration: make(chan struct{}),
		sessionID:     uuid.NewString(),
		refs:          newVariableReferences(),
		frames:        make(map[int]stackFrameInfo),
	}
	d.srv = NewServer(d.dapHandler())
	return d
}

func (d *Adapter[C]) Start(ctx context.Context, conn Conn) (C, error) {
	d.eg, _ = errgroup.WithContext(ctx)
	d.eg.Go(func() error {
		return d.srv.Serve(ctx, conn)
	})

	<-d.initialized

	resp, ok := <-d.started
	if !ok {
		resp.Error = context.Canceled
	}
	d.cfg = resp.Config.GetConfig()
	return resp.Config, resp.Error
}

// Wait blocks until the underlying connection's session ends, for a
// caller that has nothing further to do with the adapter once it is
// running (cmd/avmdbg's per-connection goroutine, notably).
func (d *Adapter[C]) Wait() error {
	if d.eg == nil {
		return nil
	}
	return d.eg.Wait()
}

func (d *Adapter[C]) Stop() error {
	if d.eg == nil {
		return nil
	}

	d.srv.Go(func(c Context) {
		c.C() <- &dap.TerminatedEvent{Event: dap.Event{Event: "terminated"}}
	})
	d.srv.Stop()

	err := d.eg.Wait()
	d.eg = nil
	return err
}

func (d *Adapter[C]) Initialize(c Context, req *dap.InitializeRequest, resp *dap.InitializeResponse) error {
	close(d.initialized)

	resp.Body.SupportsConfigurationDoneRequest = true
	resp.Body.SupportsStepBack = true
	resp.Body.SupportsBreakpointLocationsRequest = true
	resp.Body.SupportsEvaluateForHovers = true
	resp.Body.SupportsDelayedStackTraceLoading = true
	resp.Body.SupportsSingleThreadExecutionRequests = false
	resp.Body.SupportsStepInTargetsRequest = true
	return nil
}

func (d *Adapter[C]) Launch(c Context, req *dap.LaunchRequest, resp *dap.LaunchResponse) error {
	var cfg C
	if err := json.Unmarshal(req.Arguments, &cfg); err != nil {
		d.started <- launchResponse[C]{Error: err}
		close(d.started)
		return err
	}

	assets, sess, err := d.loadSession()
	if err != nil {
		logrus.WithError(err).Warn("failed to load trace assets")
		d.started <- launchResponse[C]{Config: cfg, Error: err}
		close(d.started)
		c.Notify(&dap.OutputEvent{
			Event: dap.Event{Event: "output"},
			Body: dap.OutputEventBody{
				Category: "stderr",
				Output:   err.Error() + "\n",
			},
		})
		c.Notify(&dap.TerminatedEvent{Event: dap.Event{Event: "terminated"}})
		return err
	}

	d.assets = assets
	d.sess = sess

	c.Go(d.launch)

	d.started <- launchResponse[C]{Config: cfg}
	close(d.started)
	return nil
}

// loadSession performs every disk read and every pure-computation
// build step (trace load, execution tree, source index) synchronously,
// so all disk access happens during Launch processing rather than on
// the async post-launch goroutine.
func (d *Adapter[C]) loadSession() (*trace.Assets, *session.Session, error) {
	simPath := os.Getenv(simulationResponsePathEnv)
	sourcesPath := os.Getenv(sourcesDescriptionPathEnv)
	if simPath == "" {
		return nil, nil, errors.Errorf("%s not set", simulationResponsePathEnv)
	}
	if sourcesPath == "" {
		return nil, nil, errors.Errorf("%s not set", sourcesDescriptionPathEnv)
	}

	simJSON, err := os.ReadFile(simPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", simulationResponsePathEnv)
	}
	sourcesJSON, err := os.ReadFile(sourcesPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", sourcesDescriptionPathEnv)
	}

	assets, err := trace.Load(simJSON, sourcesJSON)
	if err != nil {
		return nil, nil, err
	}

	roots, err := exectree.Build(assets)
	if err != nil {
		return nil, nil, err
	}

	index, err := session.BuildSourceIndex(assets)
	if err != nil {
		return nil, nil, err
	}

	return assets, session.New(roots, index), nil
}

func (d *Adapter[C]) ConfigurationDone(c Context, req *dap.ConfigurationDoneRequest, resp *dap.ConfigurationDoneResponse) error {
	select {
	case d.configuration <- struct{}{}:
	default:
	}
	return nil
}

// launch runs as the post-launch asynchronous goroutine: it sends
// initialized, waits (bounded) for configurationDone, positions the
// cursor, and emits the resulting stop. Every Notify call here sends
// immediately rather than queuing, since there is no later request
// response to piggyback on.
func (d *Adapter[C]) launch(c Context) {
	c.C() <- &dap.InitializedEvent{Event: dap.Event{Event: "initialized"}}

	select {
	case <-c.Done():
		return
	case <-d.configuration:
	case <-time.After(configurationTimeout):
	}

	reason, ok := d.sess.Launch(d.cfg.StopOnEntry)
	d.resetPresentation()
	d.emitStop(c, reason, ok)
}

func (d *Adapter[C]) resetPresentation() {
	d.refs.reset()
	d.framesMu.Lock()
	d.frames = make(map[int]stackFrameInfo)
	d.nextFrameID = 0
	d.framesMu.Unlock()
}

func (d *Adapter[C]) emitStop(c Context, reason session.StopReason, ok bool) {
	if !ok {
		c.Notify(&dap.TerminatedEvent{Event: dap.Event{Event: "terminated"}})
		return
	}

	body := dap.StoppedEventBody{
		Reason:   stopReasonString(reason),
		ThreadId: 1,
	}
	if reason == session.ReasonBreakpoint {
		if filename, line, col, ok := d.sess.CurrentLocation(); ok {
			body.HitBreakpointIds = d.sess.Breakpoints().MatchingIDs(filename, line, col)
		}
	}

	c.Notify(&dap.StoppedEvent{
		Event: dap.Event{Event: "stopped"},
		Body:  body,
	})
}

func stopReasonString(r session.StopReason) string {
	switch r {
	case session.ReasonEntry:
		return "entry"
	case session.ReasonStep:
		return "step"
	case session.ReasonBreakpoint:
		return "breakpoint"
	case session.ReasonException:
		return "exception"
	default:
		return "step"
	}
}

func (d *Adapter[C]) Disconnect(c Context, req *dap.DisconnectRequest, resp *dap.DisconnectResponse) error {
	if d.sess != nil {
		d.sess.Disconnect()
	}
	return nil
}

func (d *Adapter[C]) Terminate(c Context, req *dap.TerminateRequest, resp *dap.TerminateResponse) error {
	if d.sess != nil {
		d.sess.Disconnect()
	}
	c.Notify(&dap.TerminatedEvent{Event: dap.Event{Event: "terminated"}})
	return nil
}

func (d *Adapter[C]) SetBreakpoints(c Context, req *dap.SetBreakpointsRequest, resp *dap.SetBreakpointsResponse) error {
	if d.sess == nil {
		return errors.New("not launched")
	}

	reqs := make([]session.Requested, 0, len(req.Arguments.Breakpoints))
	for _, sbp := range req.Arguments.Breakpoints {
		reqs = append(reqs, session.Requested{
			Line:      sbp.Line,
			Column:    sbp.Column,
			HasColumn: sbp.Column != 0,
		})
	}

	bps := d.sess.Breakpoints().Set(req.Arguments.Source.Path, reqs)
	resp.Body.Breakpoints = make([]dap.Breakpoint, len(bps))
	for i, bp := range bps {
		resp.Body.Breakpoints[i] = dap.Breakpoint{
			Id:       bp.ID,
			Verified: bp.Verified,
			Line:     bp.Line,
			Column:   bp.Column,
			Source:   &dap.Source{Name: path.Base(bp.Filename), Path: bp.Filename},
		}
	}
	return nil
}

func (d *Adapter[C]) BreakpointLocations(c Context, req *dap.BreakpointLocationsRequest, resp *dap.BreakpointLocationsResponse) error {
	if d.sess == nil {
		return errors.New("not launched")
	}

	lineHi := req.Arguments.EndLine
	if lineHi == 0 {
		lineHi = req.Arguments.Line
	}

	locs := d.sess.Index().BreakpointLocations(req.Arguments.Source.Path, req.Arguments.Line, lineHi)
	resp.Body.Breakpoints = make([]dap.BreakpointLocation, len(locs))
	for i, loc := range locs {
		resp.Body.Breakpoints[i] = dap.BreakpointLocation{Line: loc.Line, Column: loc.Column}
	}
	return nil
}

func (d *Adapter[C]) Continue(c Context, req *dap.ContinueRequest, resp *dap.ContinueResponse) error {
	reason, ok := d.sess.Continue()
	d.resetPresentation()
	d.emitStop(c, reason, ok)
	return nil
}

func (d *Adapter[C]) ReverseContinue(c Context, req *dap.ReverseContinueRequest, resp *dap.ReverseContinueResponse) error {
	reason, ok := d.sess.ReverseContinue()
	d.resetPresentation()
	d.emitStop(c, reason, ok)
	return nil
}

func (d *Adapter[C]) Next(c Context, req *dap.NextRequest, resp *dap.NextResponse) error {
	reason, ok := d.sess.StepOver()
	d.resetPresentation()
	d.emitStop(c, reason, ok)
	return nil
}

func (d *Adapter[C]) StepIn(c Context, req *dap.StepInRequest, resp *dap.StepInResponse) error {
	reason, ok := d.sess.StepIn()
	d.resetPresentation()
	d.emitStop(c, reason, ok)
	return nil
}

func (d *Adapter[C]) StepOut(c Context, req *dap.StepOutRequest, resp *dap.StepOutResponse) error {
	reason, ok := d.sess.StepOut()
	d.resetPresentation()
	d.emitStop(c, reason, ok)
	return nil
}

func (d *Adapter[C]) StepBack(c Context, req *dap.StepBackRequest, resp *dap.StepBackResponse) error {
	reason, ok := d.sess.StepBack()
	d.resetPresentation()
	d.emitStop(c, reason, ok)
	return nil
}

// StepInTargets answers an IDE's "Step In Target" picker. It reports at
// most one target, labelled "inner transaction group", and only when
// the frame's current event spawned an inner group; otherwise the list
// is empty. Opcode names are not listed.
func (d *Adapter[C]) StepInTargets(c Context, req *dap.StepInTargetsRequest, resp *dap.StepInTargetsResponse) error {
	d.framesMu.Lock()
	info, ok := d.frames[req.Arguments.FrameId]
	d.framesMu.Unlock()
	if !ok || d.sess == nil || d.sess.Cursor() == nil {
		resp.Body.Targets = []dap.StepInTarget{}
		return nil
	}

	cur := d.sess.Cursor()
	f := cur.FrameAt(info.depth)
	if !f.IsProgram() {
		resp.Body.Targets = []dap.StepInTarget{}
		return nil
	}

	event := cur.EventAt(info.depth)
	if _, spawns := f.SpawnedInners[event]; !spawns {
		resp.Body.Targets = []dap.StepInTarget{}
		return nil
	}

	resp.Body.Targets = []dap.StepInTarget{
		{Id: 1, Label: "inner transaction group"},
	}
	return nil
}

func (d *Adapter[C]) Threads(c Context, req *dap.ThreadsRequest, resp *dap.ThreadsResponse) error {
	resp.Body.Threads = []dap.Thread{{Id: 1, Name: "simulation"}}
	return nil
}

func (d *Adapter[C]) StackTrace(c Context, req *dap.StackTraceRequest, resp *dap.StackTraceResponse) error {
	if d.sess == nil || d.sess.Cursor() == nil {
		resp.Body.StackFrames = []dap.StackFrame{}
		return nil
	}

	resp.Body.StackFrames = d.buildStackTrace(d.sess.Cursor(), d.sess.Roots(), d.assets, d.sess.Index())
	resp.Body.TotalFrames = len(resp.Body.StackFrames)
	return nil
}

func (d *Adapter[C]) Scopes(c Context, req *dap.ScopesRequest, resp *dap.ScopesResponse) error {
	d.framesMu.Lock()
	info, ok := d.frames[req.Arguments.FrameId]
	d.framesMu.Unlock()
	if !ok || d.sess == nil || d.sess.Cursor() == nil {
		return errors.Errorf("no such frame id: %d", req.Arguments.FrameId)
	}

	resp.Body.Scopes = d.buildScopes(d.sess.Cursor(), info.depth, d.refs)
	return nil
}

func (d *Adapter[C]) Variables(c Context, req *dap.VariablesRequest, resp *dap.VariablesResponse) error {
	resp.Body.Variables = d.refs.Get(req.Arguments.VariablesReference)
	return nil
}

func (d *Adapter[C]) Source(c Context, req *dap.SourceRequest, resp *dap.SourceResponse) error {
	fname := req.Arguments.Source.Path
	if d.assets == nil {
		return errors.Errorf("file not found: %s", fname)
	}

	for _, p := range d.assets.Programs {
		if p.Filename == fname {
			resp.Body.Content = p.Text
			return nil
		}
	}

	if fname == innerPseudoFilename(d.sessionID) {
		resp.Body.Content = "{}"
		return nil
	}

	var groupIdx int
	if n, err := fmt.Sscanf(fname, "transaction-group-"+d.sessionID+"-%d.json", &groupIdx); n == 1 && err == nil {
		resp.Body.Content = string(d.assets.PrettyJSON)
		return nil
	}

	return errors.Errorf("file not found: %s", fname)
}

func (d *Adapter[C]) dapHandler() Handler {
	return Handler{
		Initialize:          d.Initialize,
		Launch:              d.Launch,
		SetBreakpoints:      d.SetBreakpoints,
		BreakpointLocations: d.BreakpointLocations,
		ConfigurationDone:   d.ConfigurationDone,
		Disconnect:          d.Disconnect,
		Terminate:           d.Terminate,
		Continue:            d.Continue,
		ReverseContinue:     d.ReverseContinue,
		Next:                d.Next,
		StepBack:            d.StepBack,
		StepIn:              d.StepIn,
		StepInTargets:       d.StepInTargets,
		StepOut:             d.StepOut,
		Threads:             d.Threads,
		StackTrace:          d.StackTrace,
		Scopes:              d.Scopes,
		Variables:           d.Variables,
		Evaluate:            d.Evaluate,
		Source:              d.Source,
	}
}
