// Package model holds the aggregation state kept by the dispatcher, the
// collector and the timelock: adapter registries, per-message records and
// scheduled transactions.
package model

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// RegistrySnapshot is an immutable view of the adapter registry at one
// version. Quorum checks run against a snapshot, never against the live
// registry, so "recheck under current registry" is an explicit, testable
// function of (record, snapshot).
type RegistrySnapshot struct {
	Version  uint64
	Adapters []common.Address
	Quorum   uint64
}

// Contains reports whether the snapshot includes the given adapter.
func (s RegistrySnapshot) Contains(adapter common.Address) bool {
	for _, a := range s.Adapters {
		if a == adapter {
			return true
		}
	}
	return false
}

// AdapterRegistry is the set of trusted adapter addresses on one side of the
// protocol plus the quorum threshold. The set is kept sorted and deduplicated;
// every successful mutation bumps the version counter.
//
// Invariant: quorum <= len(adapters) at all times. Mutations that would
// violate it are rejected.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters []common.Address
	quorum   uint64
	version  uint64
}

// NewAdapterRegistry builds a registry from the initial adapter set.
// quorum must satisfy 1 <= quorum <= len(adapters).
func NewAdapterRegistry(adapters []common.Address, quorum uint64) (*AdapterRegistry, error) {
	r := &AdapterRegistry{}
	if err := r.validateAndInsert(adapters); err != nil {
		return nil, err
	}
	if quorum == 0 {
		return nil, mmacommon.ErrZeroQuorum
	}
	if quorum > uint64(len(r.adapters)) {
		return nil, fmt.Errorf("%w: quorum %d, adapters %d", mmacommon.ErrQuorumExceedsAdapters, quorum, len(r.adapters))
	}
	r.quorum = quorum
	return r, nil
}

// NewAdapterSet builds a registry used as a plain trusted-adapter set with no
// quorum semantics (the sender side). The quorum invariant is not enforced.
func NewAdapterSet(adapters []common.Address) (*AdapterRegistry, error) {
	r := &AdapterRegistry{}
	if err := r.validateAndInsert(adapters); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *AdapterRegistry) validateAndInsert(adapters []common.Address) error {
	for _, a := range adapters {
		if a == (common.Address{}) {
			return mmacommon.ErrZeroAddress
		}
		if r.contains(a) {
			return fmt.Errorf("%w: %s", mmacommon.ErrDuplicateAdapter, a.Hex())
		}
		r.adapters = append(r.adapters, a)
	}
	sort.Slice(r.adapters, func(i, j int) bool {
		return bytes.Compare(r.adapters[i][:], r.adapters[j][:]) < 0
	})
	return nil
}

func (r *AdapterRegistry) contains(adapter common.Address) bool {
	for _, a := range r.adapters {
		if a == adapter {
			return true
		}
	}
	return false
}

// Add registers the given adapters. Zero addresses and duplicates are
// rejected atomically: either all adapters are added or none.
func (r *AdapterRegistry) Add(adapters []common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range adapters {
		if a == (common.Address{}) {
			return mmacommon.ErrZeroAddress
		}
		if r.contains(a) {
			return fmt.Errorf("%w: %s", mmacommon.ErrDuplicateAdapter, a.Hex())
		}
	}
	// Reject duplicates within the request itself.
	for i := range adapters {
		for j := i + 1; j < len(adapters); j++ {
			if adapters[i] == adapters[j] {
				return fmt.Errorf("%w: %s", mmacommon.ErrDuplicateAdapter, adapters[i].Hex())
			}
		}
	}

	r.adapters = append(r.adapters, adapters...)
	sort.Slice(r.adapters, func(i, j int) bool {
		return bytes.Compare(r.adapters[i][:], r.adapters[j][:]) < 0
	})
	r.version++
	return nil
}

// Remove deregisters the given adapters. Removal that would drop the adapter
// count below the quorum threshold is rejected.
func (r *AdapterRegistry) Remove(adapters []common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range adapters {
		if !r.contains(a) {
			return fmt.Errorf("%w: %s", mmacommon.ErrAdapterNotFound, a.Hex())
		}
	}

	remaining := uint64(len(r.adapters) - len(adapters))
	if r.quorum > 0 && remaining < r.quorum {
		return fmt.Errorf("%w: quorum %d, adapters after removal %d", mmacommon.ErrQuorumExceedsAdapters, r.quorum, remaining)
	}

	kept := r.adapters[:0]
	for _, existing := range r.adapters {
		removed := false
		for _, a := range adapters {
			if existing == a {
				removed = true
				break
			}
		}
		if !removed {
			kept = append(kept, existing)
		}
	}
	r.adapters = kept
	r.version++
	return nil
}

// SetQuorum updates the quorum threshold. Raising the threshold above the
// number of registered adapters is rejected.
func (r *AdapterRegistry) SetQuorum(quorum uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if quorum == 0 {
		return mmacommon.ErrZeroQuorum
	}
	if quorum > uint64(len(r.adapters)) {
		return fmt.Errorf("%w: quorum %d, adapters %d", mmacommon.ErrQuorumExceedsAdapters, quorum, len(r.adapters))
	}
	r.quorum = quorum
	r.version++
	return nil
}

// Contains reports whether the adapter is currently registered.
func (r *AdapterRegistry) Contains(adapter common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contains(adapter)
}

// Len returns the number of registered adapters.
func (r *AdapterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Quorum returns the current quorum threshold.
func (r *AdapterRegistry) Quorum() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.quorum
}

// Version returns the current registry version. It increases on every
// successful mutation.
func (r *AdapterRegistry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Adapters returns a copy of the registered adapter set, sorted.
func (r *AdapterRegistry) Adapters() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// Snapshot returns an immutable view of the registry at its current version.
func (r *AdapterRegistry) Snapshot() RegistrySnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapters := make([]common.Address, len(r.adapters))
	copy(adapters, r.adapters)
	return RegistrySnapshot{
		Version:  r.version,
		Adapters: adapters,
		Quorum:   r.quorum,
	}
}
