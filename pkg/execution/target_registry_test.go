package execution

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetRegistryCall(t *testing.T) {
	ctx := context.Background()
	target := common.HexToAddress("0x0000000000000000000000000000000000000777")
	caller := common.HexToAddress("0x0000000000000000000000000000000000000111")

	t.Run("routes to registered handler", func(t *testing.T) {
		registry := NewTargetRegistry()

		var gotCaller common.Address
		var gotValue *big.Int
		registry.Register(target, func(_ context.Context, from common.Address, value *big.Int, data []byte) ([]byte, error) {
			gotCaller = from
			gotValue = value
			return []byte("ok"), nil
		})

		result := registry.Call(ctx, caller, target, big.NewInt(5), []byte{1})
		require.True(t, result.Success)
		assert.Equal(t, []byte("ok"), []byte(result.ReturnData))
		assert.Equal(t, caller, gotCaller)
		assert.Equal(t, int64(5), gotValue.Int64())
	})

	t.Run("handler failure surfaces as failed result", func(t *testing.T) {
		registry := NewTargetRegistry()
		handlerErr := errors.New("target reverted")
		registry.Register(target, func(context.Context, common.Address, *big.Int, []byte) ([]byte, error) {
			return nil, handlerErr
		})

		result := registry.Call(ctx, caller, target, nil, nil)
		require.False(t, result.Success)
		assert.ErrorIs(t, result.Err, handlerErr)
	})

	t.Run("unknown target", func(t *testing.T) {
		registry := NewTargetRegistry()

		result := registry.Call(ctx, caller, target, nil, nil)
		require.False(t, result.Success)
		assert.Contains(t, result.Err.Error(), "no handler registered")
	})
}
