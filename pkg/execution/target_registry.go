package execution

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// CallHandler is a target endpoint reachable through the TargetRegistry.
// The caller address is the identity the executor performs the call under,
// the in-process equivalent of msg.sender.
type CallHandler func(ctx context.Context, caller common.Address, value *big.Int, data []byte) ([]byte, error)

// TargetRegistry is an in-process CallExecutor routing target addresses to
// registered handlers. The collector registers its own governance surface
// here; tests register target fixtures.
type TargetRegistry struct {
	mu      sync.RWMutex
	targets map[common.Address]CallHandler
}

func NewTargetRegistry() *TargetRegistry {
	return &TargetRegistry{
		targets: make(map[common.Address]CallHandler),
	}
}

// Register binds a handler to a target address, replacing any previous binding.
func (r *TargetRegistry) Register(target common.Address, handler CallHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[target] = handler
}

// Call routes the call to the handler registered for the target.
func (r *TargetRegistry) Call(ctx context.Context, from, target common.Address, value *big.Int, data []byte) CallResult {
	r.mu.RLock()
	handler, ok := r.targets[target]
	r.mu.RUnlock()

	if !ok {
		return Fail(fmt.Errorf("no handler registered for target %s", target.Hex()))
	}

	returnData, err := handler(ctx, from, value, data)
	if err != nil {
		return Fail(err)
	}
	return Ok(returnData)
}
