package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

func addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

func TestNewAdapterRegistry(t *testing.T) {
	adapters := []common.Address{addr(1), addr(2), addr(3)}

	t.Run("valid", func(t *testing.T) {
		registry, err := NewAdapterRegistry(adapters, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, registry.Len())
		assert.Equal(t, uint64(2), registry.Quorum())
		assert.Equal(t, uint64(0), registry.Version())
	})

	t.Run("zero quorum", func(t *testing.T) {
		_, err := NewAdapterRegistry(adapters, 0)
		assert.ErrorIs(t, err, mmacommon.ErrZeroQuorum)
	})

	t.Run("quorum above adapter count", func(t *testing.T) {
		_, err := NewAdapterRegistry(adapters, 4)
		assert.ErrorIs(t, err, mmacommon.ErrQuorumExceedsAdapters)
	})

	t.Run("zero address", func(t *testing.T) {
		_, err := NewAdapterRegistry([]common.Address{addr(1), {}}, 1)
		assert.ErrorIs(t, err, mmacommon.ErrZeroAddress)
	})

	t.Run("duplicate adapter", func(t *testing.T) {
		_, err := NewAdapterRegistry([]common.Address{addr(1), addr(1)}, 1)
		assert.ErrorIs(t, err, mmacommon.ErrDuplicateAdapter)
	})
}

func TestAdapterRegistryMutations(t *testing.T) {
	newRegistry := func(t *testing.T) *AdapterRegistry {
		t.Helper()
		registry, err := NewAdapterRegistry([]common.Address{addr(1), addr(2), addr(3)}, 2)
		require.NoError(t, err)
		return registry
	}

	t.Run("add bumps version", func(t *testing.T) {
		registry := newRegistry(t)
		require.NoError(t, registry.Add([]common.Address{addr(4)}))
		assert.Equal(t, 4, registry.Len())
		assert.Equal(t, uint64(1), registry.Version())
		assert.True(t, registry.Contains(addr(4)))
	})

	t.Run("add rejects duplicate atomically", func(t *testing.T) {
		registry := newRegistry(t)
		err := registry.Add([]common.Address{addr(4), addr(1)})
		assert.ErrorIs(t, err, mmacommon.ErrDuplicateAdapter)
		assert.Equal(t, 3, registry.Len())
		assert.False(t, registry.Contains(addr(4)))
		assert.Equal(t, uint64(0), registry.Version())
	})

	t.Run("add rejects intra-request duplicate", func(t *testing.T) {
		registry := newRegistry(t)
		err := registry.Add([]common.Address{addr(4), addr(4)})
		assert.ErrorIs(t, err, mmacommon.ErrDuplicateAdapter)
		assert.Equal(t, 3, registry.Len())
	})

	t.Run("remove", func(t *testing.T) {
		registry := newRegistry(t)
		require.NoError(t, registry.Remove([]common.Address{addr(3)}))
		assert.Equal(t, 2, registry.Len())
		assert.False(t, registry.Contains(addr(3)))
		assert.Equal(t, uint64(1), registry.Version())
	})

	t.Run("remove unknown adapter", func(t *testing.T) {
		registry := newRegistry(t)
		assert.ErrorIs(t, registry.Remove([]common.Address{addr(9)}), mmacommon.ErrAdapterNotFound)
	})

	t.Run("remove below quorum rejected", func(t *testing.T) {
		registry := newRegistry(t)
		err := registry.Remove([]common.Address{addr(2), addr(3)})
		assert.ErrorIs(t, err, mmacommon.ErrQuorumExceedsAdapters)
		assert.Equal(t, 3, registry.Len())
	})

	t.Run("set quorum", func(t *testing.T) {
		registry := newRegistry(t)
		require.NoError(t, registry.SetQuorum(3))
		assert.Equal(t, uint64(3), registry.Quorum())
		assert.Equal(t, uint64(1), registry.Version())
	})

	t.Run("quorum above registered count rejected", func(t *testing.T) {
		registry := newRegistry(t)
		err := registry.SetQuorum(4)
		assert.ErrorIs(t, err, mmacommon.ErrQuorumExceedsAdapters)
		assert.Equal(t, uint64(2), registry.Quorum())
	})

	t.Run("zero quorum rejected", func(t *testing.T) {
		registry := newRegistry(t)
		assert.ErrorIs(t, registry.SetQuorum(0), mmacommon.ErrZeroQuorum)
	})
}

func TestRegistrySnapshot(t *testing.T) {
	registry, err := NewAdapterRegistry([]common.Address{addr(1), addr(2)}, 2)
	require.NoError(t, err)

	snap := registry.Snapshot()
	assert.Equal(t, uint64(0), snap.Version)
	assert.Equal(t, uint64(2), snap.Quorum)
	assert.True(t, snap.Contains(addr(1)))
	assert.False(t, snap.Contains(addr(3)))

	// Mutating the registry leaves earlier snapshots untouched.
	require.NoError(t, registry.Add([]common.Address{addr(3)}))
	assert.Len(t, snap.Adapters, 2)
	assert.False(t, snap.Contains(addr(3)))

	fresh := registry.Snapshot()
	assert.Equal(t, uint64(1), fresh.Version)
	assert.True(t, fresh.Contains(addr(3)))
}

func TestAdapterSet(t *testing.T) {
	set, err := NewAdapterSet([]common.Address{addr(1), addr(2)})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), set.Quorum())

	// No quorum invariant on a plain set: removal down to empty is allowed.
	require.NoError(t, set.Remove([]common.Address{addr(1), addr(2)}))
	assert.Equal(t, 0, set.Len())
}
