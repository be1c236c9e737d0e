package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type prewarm struct {
	PhotographerID int64  `json:"photographer_id"`
	Date           string `json:"date"`
}

func roundTrip(t *testing.T, q Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := NewMessage(TypePrewarm, prewarm{PhotographerID: 7, Date: "2026-05-09"})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	select {
	case got := <-ch:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, TypePrewarm, got.Type)
		var body prewarm
		require.NoError(t, got.Decode(&body))
		assert.Equal(t, prewarm{PhotographerID: 7, Date: "2026-05-09"}, body)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestInMemoryQueue(t *testing.T) {
	roundTrip(t, NewInMemory(4))
}

func TestRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	roundTrip(t, NewRedisQueue(client, "", zap.NewNop()))
}
