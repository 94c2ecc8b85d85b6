package flow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tytsxai/proxycast/protocol"
)

func TestRedisMirrorPublishesFlowEvents(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sub := client.Subscribe(context.Background(), "test:flow_events")
	defer sub.Close()
	msgs := sub.Channel()

	store := NewStore(WithCapacity(10), WithCoalesceInterval(time.Millisecond))
	mirror := NewRedisMirror(client, "test:flow_events", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx, store)

	id := store.Begin(protocol.Document{Model: "gpt-4"}, RoutingMeta{ResolvedModel: "gpt-4"}, TypeChat)
	store.Finish(id, protocol.Response{Model: "gpt-4"})

	select {
	case msg := <-msgs:
		var decoded redisEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
		require.Equal(t, string(EventFlowStarted), decoded.Kind)
		require.Equal(t, id.String(), decoded.FlowID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mirrored flow_started event")
	}
}
