// Package execution performs the final low-level call a quorum-approved
// message carries. Failures are surfaced as data, never swallowed: callers
// branch on the CallResult.
package execution

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/multibridge/mma/pkg/protocol"
)

// CallResult is the outcome of one target call.
type CallResult struct {
	Success    bool
	ReturnData protocol.ByteSlice
	// Err carries the failure reason when Success is false.
	Err error
}

// Ok builds a successful result.
func Ok(returnData []byte) CallResult {
	return CallResult{Success: true, ReturnData: returnData}
}

// Fail builds a failed result.
func Fail(err error) CallResult {
	return CallResult{Success: false, Err: err}
}

// CallExecutor performs an opaque call against a target on behalf of a
// caller identity. Implementations route in-process (TargetRegistry) or to a
// live chain (EVMExecutor).
type CallExecutor interface {
	Call(ctx context.Context, from, target common.Address, value *big.Int, data []byte) CallResult
}
