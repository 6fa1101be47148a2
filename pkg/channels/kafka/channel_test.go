package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiq/automata/pkg/events"
)

func TestPartitionKeyUsesEventKey(t *testing.T) {
	msg := message.NewMessage("msg-1", nil)
	msg.Metadata.Set(events.EventKeyMetadataKey, "tenant-1")

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", key)
}

func TestPartitionKeyFallsBackToUUID(t *testing.T) {
	msg := message.NewMessage("msg-2", nil)

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "msg-2", key)
}
