// Package quorum implements the quorum check the collector runs over a
// message record and a registry snapshot.
package quorum

import (
	"github.com/multibridge/mma/pkg/model"
)

// RegistryQuorumValidator counts distinct deliveries that are still backed by
// a currently-registered adapter. It is a pure function of the record and the
// snapshot: votes cast by adapters that were removed since delivery do not
// count, which is what makes "recheck under current registry" meaningful.
type RegistryQuorumValidator struct{}

func NewRegistryQuorumValidator() *RegistryQuorumValidator {
	return &RegistryQuorumValidator{}
}

// CheckQuorum reports whether the record meets the snapshot's threshold, and
// how many deliveries counted toward it.
func (v *RegistryQuorumValidator) CheckQuorum(record *model.MessageRecord, snapshot model.RegistrySnapshot) (bool, uint64) {
	if record == nil || snapshot.Quorum == 0 {
		return false, 0
	}

	var counted uint64
	for _, adapter := range record.DeliveredBy() {
		if snapshot.Contains(adapter) {
			counted++
		}
	}

	return counted >= snapshot.Quorum, counted
}
