package dap

import "github.com/algorand/avm-trace-dap/dap/common"

// LaunchConfig is the constraint on Adapter's type parameter: whatever
// shape a launch request body takes, it must be able to surface the
// common fields every session understands.
type LaunchConfig interface {
	GetConfig() common.Config
}
