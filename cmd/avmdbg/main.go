// Command avmdbg is a Debug Adapter Protocol server for post-mortem
// replay of an AVM transaction-group simulation trace.
package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/algorand/avm-trace-dap/dap"
	"github.com/algorand/avm-trace-dap/dap/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:           "avmdbg",
		Short:         "Debug Adapter Protocol server for AVM trace replay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv("ALGORAND_SIMULATION_RESPONSE_PATH") == "" {
				return fmt.Errorf("ALGORAND_SIMULATION_RESPONSE_PATH must be set")
			}
			if os.Getenv("ALGORAND_TXN_GROUP_SOURCES_DESCRIPTION_PATH") == "" {
				return fmt.Errorf("ALGORAND_TXN_GROUP_SOURCES_DESCRIPTION_PATH must be set")
			}

			if port > 0 {
				return serveTCP(cmd.Context(), port)
			}
			return serveStdio(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&port, "server", 0, "listen on 127.0.0.1:<port> instead of stdin/stdout")
	return cmd
}

// serveStdio runs exactly one DAP session over stdin/stdout.
func serveStdio(ctx context.Context) error {
	conn := dap.NewConn(os.Stdin, os.Stdout)
	return runSession(ctx, conn)
}

// serveTCP listens on 127.0.0.1:<port> and spawns one Adapter per
// accepted connection, each running until that connection's session
// disconnects. This generalizes monitor/dap/dap.go's net.Listener
// serving idiom from a Unix socket to TCP.
func serveTCP(ctx context.Context, port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return err
	}
	defer l.Close()

	logrus.Infof("listening on %s", l.Addr())

	for {
		c, err := l.Accept()
		if err != nil {
			return err
		}

		go func() {
			defer c.Close()
			conn := dap.NewConn(c, c)
			if err := runSession(ctx, conn); err != nil {
				logrus.WithError(err).Warn("session ended with error")
			}
		}()
	}
}

func runSession(ctx context.Context, conn dap.Conn) error {
	adapter := dap.New[common.Config]()
	defer adapter.Stop()

	if _, err := adapter.Start(ctx, conn); err != nil {
		return err
	}
	return adapter.Wait()
}
