package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flowsplit/internal/reconcile"
)

type commander interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// SnapshotPublisher stores the latest reconciled snapshot under a key and
// announces it on a channel.
type SnapshotPublisher struct {
	client  commander
	key     string
	channel string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewSnapshotPublisher creates a publisher. A zero ttl keeps the key forever.
func NewSnapshotPublisher(client commander, key, channel string, ttl time.Duration, logger *zap.Logger) *SnapshotPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotPublisher{client: client, key: key, channel: channel, ttl: ttl, logger: logger}
}

// Publish implements reconcile.Sink.
func (p *SnapshotPublisher) Publish(ctx context.Context, snap *reconcile.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %d: %w", snap.Seq, err)
	}
	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", p.key, err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	p.logger.Debug("snapshot published", zap.Uint64("seq", snap.Seq), zap.Int64("subscribers", receivers))
	return nil
}

var _ reconcile.Sink = (*SnapshotPublisher)(nil)
