package natsengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConsumerSourceCloseReturnsLeaseToPool(t *testing.T) {
	cfg := Config{Subjects: []string{"orders"}, MaxBlockSize: 10}
	conn := &connectionManager{cfg: cfg}

	p := newConsumerPool(zap.NewNop(), 1)
	require.Equal(t, 1, p.createConsumers(cfg, conn))

	c, err := p.popConsumer(context.Background(), time.Second)
	require.NoError(t, err)

	_, err = p.popConsumer(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrConnectError, "pool should be exhausted before Close")

	src := &consumerSource{c: c, pool: p}
	src.Close()

	returned, err := p.popConsumer(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, c, returned)
}

func TestUnionSourceCloseClosesEverySource(t *testing.T) {
	cfg := Config{Subjects: []string{"orders"}, MaxBlockSize: 10}
	conn := &connectionManager{cfg: cfg}

	p := newConsumerPool(zap.NewNop(), 2)
	require.Equal(t, 2, p.createConsumers(cfg, conn))

	leased := make([]*consumer, 0, 2)
	for i := 0; i < 2; i++ {
		c, err := p.popConsumer(context.Background(), time.Second)
		require.NoError(t, err)
		leased = append(leased, c)
	}

	u := &unionSource{sources: []Source{
		&consumerSource{c: leased[0], pool: p},
		&consumerSource{c: leased[1], pool: p},
	}}
	u.Close()

	for i := 0; i < 2; i++ {
		_, err := p.popConsumer(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
	}
}

func TestEmptySourceCloseIsNoop(t *testing.T) {
	emptySource{}.Close()
}
