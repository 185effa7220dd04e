package dap

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/algorand/avm-trace-dap/dap/common"
	"github.com/google/go-dap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Conn = common.Conn

var connSeq atomic.Int64

type conn struct {
	id     int64
	recvCh <-chan dap.Message
	sendCh chan<- dap.Message

	ctx    context.Context
	cancel context.CancelCauseFunc

	eg   *errgroup.Group
	once sync.Once
}

// NewConn wraps rd/wr in a buffered, Content-Length-framed message
// connection. Every sent and received message is logged at Debug level
// tagged with a monotonic connection id, mirroring the request/response
// tracing monitor/dap/dap.go does for its Unix-socket connections — here
// useful to tell apart the several connections a --server listener can
// have open for concurrently replayed traces.
func NewConn(rd io.Reader, wr io.Writer) Conn {
	id := connSeq.Add(1)
	log := logrus.WithField("conn", id)

	recvCh := make(chan dap.Message, 100)
	sendCh := make(chan dap.Message, 100)
	errCh := make(chan error, 1)

	// Reader input may never close so this is an orphaned goroutine.
	// It's ok if it does actually close but not necessary for the
	// proper functioning of this connection.
	//
	// The reason this might not close is because stdin close is controlled
	// by the OS and can't be closed from within the program.
	go func() {
		defer close(errCh)
		defer close(recvCh)

		rd := bufio.NewReader(rd)
		for {
			m, err := dap.ReadProtocolMessage(rd)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.WithError(err).Debug("connection read failed")
					// TODO: not actually using this yet
					errCh <- err
				}
				return
			}
			log.Debugf("recv: %+v", m)
			recvCh <- m
		}
	}()

	eg, _ := errgroup.WithContext(context.Background())
	eg.Go(func() error {
		for m := range sendCh {
			log.Debugf("send: %+v", m)
			if err := dap.WriteProtocolMessage(wr, m); err != nil {
				return err
			}
		}
		return nil
	})

	ctx, cancel := context.WithCancelCause(context.Background())
	return &conn{
		id:     id,
		recvCh: recvCh,
		sendCh: sendCh,
		ctx:    ctx,
		cancel: cancel,
		eg:     eg,
	}
}

func (c *conn) SendMsg(m dap.Message) error {
	select {
	case c.sendCh <- m:
		return nil
	default:
		return errors.Errorf("conn %d: send channel full", c.id)
	}
}

func (c *conn) RecvMsg(ctx context.Context) (dap.Message, error) {
	select {
	case m, ok := <-c.recvCh:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *conn) Close() error {
	c.cancel(context.Canceled)
	c.once.Do(func() {
		close(c.sendCh)
	})
	return c.eg.Wait()
}
