package flow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tytsxai/proxycast/errs"
)

// RedisMirror republishes every Store event onto a Redis pub/sub channel,
// per SPEC_FULL.md §6's cross-process flow-event mirroring (a second
// process tailing the gateway's activity without holding a Subscribe
// channel open against the in-process Store).
type RedisMirror struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisMirror builds a RedisMirror over an existing client, which the
// caller creates (e.g. via redis.NewClient) and closes; this package takes
// the client directly so callers (and tests, via miniredis) control its
// lifecycle.
func NewRedisMirror(client *redis.Client, channel string, logger *zap.Logger) *RedisMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMirror{client: client, channel: channel, logger: logger}
}

// redisEvent is the wire shape published to the channel: the same Event
// fields a local Subscribe call would see, flattened to JSON.
type redisEvent struct {
	Kind      string         `json:"kind"`
	FlowID    string         `json:"flow_id"`
	Summary   map[string]any `json:"summary,omitempty"`
	Delta     map[string]any `json:"delta,omitempty"`
	Error     *errs.Error    `json:"error,omitempty"`
	Threshold string         `json:"threshold,omitempty"`
	Rate      float64        `json:"rate,omitempty"`
	Count     int64          `json:"count,omitempty"`
}

// Run subscribes to store and blocks, publishing every event until ctx is
// canceled or unsubscribe is called. Intended to run in its own goroutine
// for the lifetime of the process.
func (m *RedisMirror) Run(ctx context.Context, store *Store) {
	events, unsubscribe := store.Subscribe(256)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.publish(ctx, ev)
		}
	}
}

func (m *RedisMirror) publish(ctx context.Context, ev Event) {
	payload := redisEvent{
		Kind:      string(ev.Kind),
		FlowID:    ev.FlowID.String(),
		Summary:   ev.Summary,
		Delta:     ev.Delta,
		Error:     ev.Error,
		Threshold: string(ev.Threshold),
		Rate:      ev.Rate,
		Count:     ev.Count,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warn("redis mirror: marshal event failed", zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.client.Publish(publishCtx, m.channel, raw).Err(); err != nil {
		m.logger.Warn("redis mirror: publish failed", zap.Error(err))
	}
}
