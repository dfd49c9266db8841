package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsumerRequiresKey(t *testing.T) {
	_, err := NewConsumer(Config{Addr: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestConsumerRoundTrip(t *testing.T) {
	addr := os.Getenv("EVENTTRIAGE_TEST_REDIS")
	if addr == "" {
		t.Skip("EVENTTRIAGE_TEST_REDIS not set")
	}
	key := fmt.Sprintf("eventtriage:test:queue:%d", time.Now().UnixNano())
	c, err := NewConsumer(Config{Addr: addr, Key: key, BlockTimeout: 100 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Push(ctx, []byte(`{"n":1}`), []byte(`{"n":2}`), []byte(`{"n":3}`)))
	n, err := c.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	batch, err := c.PopBatch(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, `{"n":1}`, string(batch[0]))
	assert.Equal(t, `{"n":2}`, string(batch[1]))

	batch, err = c.PopBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	batch, err = c.PopBatch(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, batch)
}
