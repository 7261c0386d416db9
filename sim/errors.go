package sim

import "github.com/lobsim/lobsim/sim/simerr"

// Run-level error taxonomy, re-exported from simerr so callers only import sim.
type (
	DesyncError         = simerr.DesyncError
	MalformedInputError = simerr.MalformedInputError
	ConfigurationError  = simerr.ConfigurationError
	RejectedError       = simerr.RejectedError
)

var (
	ErrDesync         = simerr.ErrDesync
	ErrMalformedInput = simerr.ErrMalformedInput
	ErrConfiguration  = simerr.ErrConfiguration
	ErrRiskRejected   = simerr.ErrRiskRejected
)
