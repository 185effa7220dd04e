package dap

import (
	"context"
	"reflect"

	"github.com/google/go-dap"
	"github.com/pkg/errors"
)

type Context interface {
	context.Context
	C() chan<- dap.Message
	Go(f func(c Context)) bool

	// Notify queues an event to be sent right after the response to the
	// request currently being handled, so a Stopped event always follows
	// the reply that caused it. Calling it outside of request dispatch
	// (e.g. from the launch goroutine) sends immediately instead.
	Notify(m dap.Message)
}

type dispatchContext struct {
	context.Context
	srv   *Server
	ch    chan<- dap.Message
	after []dap.Message

	// queueing is true only while this context is executing inside
	// dispatchRequest's fn, between the request being handled and its
	// response being sent. Notify queues during that window; any other
	// caller (the asynchronous post-launch goroutine, most notably) has
	// no later flush point, so it sends immediately instead.
	queueing bool
}

func (c *dispatchContext) C() chan<- dap.Message {
	return c.ch
}

func (c *dispatchContext) Go(f func(c Context)) bool {
	return c.srv.Go(f)
}

func (c *dispatchContext) Notify(m dap.Message) {
	if c.queueing {
		c.after = append(c.after, m)
		return
	}
	c.ch <- m
}

type HandlerFunc[Req dap.RequestMessage, Resp dap.ResponseMessage] func(c Context, req Req, resp Resp) error

func (h HandlerFunc[Req, Resp]) Do(c Context, req Req) (resp Resp, err error) {
	if h == nil {
		return resp, errors.New("not implemented")
	}

	respT := reflect.TypeFor[Resp]()
	rv := reflect.New(respT.Elem())
	resp = rv.Interface().(Resp)
	err = h(c, req, resp)
	return resp, err
}

type Handler struct {
	Initialize          HandlerFunc[*dap.InitializeRequest, *dap.InitializeResponse]
	Launch              HandlerFunc[*dap.LaunchRequest, *dap.LaunchResponse]
	Attach              HandlerFunc[*dap.AttachRequest, *dap.AttachResponse]
	SetBreakpoints      HandlerFunc[*dap.SetBreakpointsRequest, *dap.SetBreakpointsResponse]
	BreakpointLocations HandlerFunc[*dap.BreakpointLocationsRequest, *dap.BreakpointLocationsResponse]
	ConfigurationDone   HandlerFunc[*dap.ConfigurationDoneRequest, *dap.ConfigurationDoneResponse]
	Disconnect          HandlerFunc[*dap.DisconnectRequest, *dap.DisconnectResponse]
	Terminate           HandlerFunc[*dap.TerminateRequest, *dap.TerminateResponse]
	Continue            HandlerFunc[*dap.ContinueRequest, *dap.ContinueResponse]
	ReverseContinue     HandlerFunc[*dap.ReverseContinueRequest, *dap.ReverseContinueResponse]
	Next                HandlerFunc[*dap.NextRequest, *dap.NextResponse]
	StepBack            HandlerFunc[*dap.StepBackRequest, *dap.StepBackResponse]
	StepIn              HandlerFunc[*dap.StepInRequest, *dap.StepInResponse]
	StepInTargets       HandlerFunc[*dap.StepInTargetsRequest, *dap.StepInTargetsResponse]
	StepOut             HandlerFunc[*dap.StepOutRequest, *dap.StepOutResponse]
	Restart             HandlerFunc[*dap.RestartRequest, *dap.RestartResponse]
	Threads             HandlerFunc[*dap.ThreadsRequest, *dap.ThreadsResponse]
	StackTrace          HandlerFunc[*dap.StackTraceRequest, *dap.StackTraceResponse]
	Scopes              HandlerFunc[*dap.ScopesRequest, *dap.ScopesResponse]
	Variables           HandlerFunc[*dap.VariablesRequest, *dap.VariablesResponse]
	Evaluate            HandlerFunc[*dap.EvaluateRequest, *dap.EvaluateResponse]
	Source              HandlerFunc[*dap.SourceRequest, *dap.SourceResponse]
}
