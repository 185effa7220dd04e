package common

import (
	"context"
	"io"

	"github.com/google/go-dap"
)

type Conn interface {
	SendMsg(m dap.Message) error
	RecvMsg(ctx context.Context) (dap.Message, error)
	io.Closer
}

// Config is the launch configuration every session accepts, embeddable
// in richer launch configs the way commands/dap.go embeds it in the
// teacher. avmdbg has no per-launch options beyond stopOnEntry, so it
// uses Config directly as its Adapter's C type parameter.
type Config struct {
	StopOnEntry bool `json:"stopOnEntry,omitempty"`
}

func (c Config) GetConfig() Config {
	return c
}
