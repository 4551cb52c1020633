package natsengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsumerPoolCreateAndLease(t *testing.T) {
	cfg := Config{Subjects: []string{"orders"}, QueueGroup: "g", MaxBlockSize: 10}
	conn := &connectionManager{cfg: cfg}

	p := newConsumerPool(zap.NewNop(), 3)
	require.Equal(t, 3, p.createConsumers(cfg, conn))
	assert.Equal(t, 3, p.numCreatedConsumers())

	ctx := context.Background()
	leased := make([]*consumer, 0, 3)
	for i := 0; i < 3; i++ {
		c, err := p.popConsumer(ctx, time.Second)
		require.NoError(t, err)
		leased = append(leased, c)
	}

	// Pool is exhausted: a bounded wait should time out rather than block
	// forever.
	_, err := p.popConsumer(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrConnectError)

	p.pushConsumer(leased[0])
	c, err := p.popConsumer(ctx, time.Second)
	require.NoError(t, err)
	assert.Same(t, leased[0], c)
}

func TestConsumerPoolAllQueuesEmpty(t *testing.T) {
	cfg := Config{Subjects: []string{"orders"}, MaxBlockSize: 10}
	conn := &connectionManager{cfg: cfg}

	p := newConsumerPool(zap.NewNop(), 2)
	p.createConsumers(cfg, conn)
	assert.True(t, p.allQueuesEmpty())

	p.snapshot()[0].queue <- nil
	assert.False(t, p.allQueuesEmpty())
}

func TestConsumerPoolStopAllClearsSubscribedFlag(t *testing.T) {
	cfg := Config{Subjects: []string{"orders"}, MaxBlockSize: 10}
	conn := &connectionManager{cfg: cfg}

	p := newConsumerPool(zap.NewNop(), 1)
	p.createConsumers(cfg, conn)
	p.subscribed = true

	p.stopAll()
	assert.False(t, p.isSubscribed())
}
