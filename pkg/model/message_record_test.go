package model

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mmacommon "github.com/multibridge/mma/pkg/common"
	"github.com/multibridge/mma/pkg/protocol"
)

func newTestRecord(t *testing.T) *MessageRecord {
	t.Helper()
	msg, err := protocol.NewMessage(1, 2, 7, addr(0xbb), big.NewInt(0), 0, nil)
	require.NoError(t, err)
	id, err := msg.MessageID()
	require.NoError(t, err)
	return NewMessageRecord(id, msg, time.Unix(1000, 0))
}

func TestMessageRecordDeliveries(t *testing.T) {
	record := newTestRecord(t)

	require.NoError(t, record.AddDelivery(addr(1), "axelar"))
	require.NoError(t, record.AddDelivery(addr(2), "wormhole"))

	assert.Equal(t, 2, record.DeliveredCount())
	assert.True(t, record.HasDelivered(addr(1)))
	assert.False(t, record.HasDelivered(addr(3)))
	assert.Equal(t, []common.Address{addr(1), addr(2)}, record.DeliveredBy())

	name, ok := record.BridgeNameFor(addr(2))
	require.True(t, ok)
	assert.Equal(t, "wormhole", name)

	err := record.AddDelivery(addr(1), "axelar")
	assert.ErrorIs(t, err, mmacommon.ErrDuplicateDelivery)
	assert.Equal(t, 2, record.DeliveredCount())
}

func TestMessageRecordMarkExecuted(t *testing.T) {
	record := newTestRecord(t)

	require.NoError(t, record.MarkExecuted())
	assert.True(t, record.Executed)

	err := record.MarkExecuted()
	assert.ErrorIs(t, err, mmacommon.ErrMessageAlreadyExecuted)
	assert.True(t, record.Executed)
}
