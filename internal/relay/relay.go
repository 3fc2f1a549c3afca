// Package relay mirrors change batches to a Redis pub/sub channel so that
// processes outside this one can follow the grid.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/m1kah/livegrid/internal/store"
)

const (
	DefaultChannel = "livegrid:changes"

	defaultMaxRetries     = 3
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultPublishTimeout = 2 * time.Second
	pingTimeout           = 5 * time.Second
)

// Message is the payload published for every change batch.
type Message struct {
	Names       []string  `json:"names"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher sends one payload to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes with a go-redis client.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to the Redis server at addr and verifies the
// connection with a PING.
func NewRedisPublisher(ctx context.Context, addr string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: pingTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Option configures a [Relay].
type Option func(*Relay)

// WithChannel sets the channel batches are published to.
func WithChannel(channel string) Option {
	return func(r *Relay) {
		if channel != "" {
			r.channel = channel
		}
	}
}

// WithLogger sets the relay's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBackoff tunes publish retries.
func WithBackoff(initial, max time.Duration, retries uint64) Option {
	return func(r *Relay) {
		r.initialBackoff = initial
		r.maxBackoff = max
		r.maxRetries = retries
	}
}

// WithPublishTimeout bounds one publish, retries included.
func WithPublishTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.publishTimeout = d
		}
	}
}

// WithClock sets the time source for PublishedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// Relay is a subscriber that forwards each non-empty change batch as a JSON
// [Message]. Failed publishes are retried with exponential backoff and then
// dropped; the grid never waits on Redis for longer than the publish
// timeout.
type Relay struct {
	publisher      Publisher
	channel        string
	logger         *slog.Logger
	now            func() time.Time
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxRetries     uint64
	publishTimeout time.Duration

	closed    atomic.Bool
	published atomic.Int64
	failed    atomic.Int64
}

// New creates a [Relay] publishing through p.
func New(p Publisher, opts ...Option) *Relay {
	r := &Relay{
		publisher:      p,
		channel:        DefaultChannel,
		logger:         slog.Default(),
		now:            time.Now,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxRetries:     defaultMaxRetries,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange publishes batch.
func (r *Relay) OnChange(batch store.ChangeBatch) {
	if len(batch) == 0 || r.closed.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.publishTimeout)
	defer cancel()

	if err := r.Publish(ctx, batch); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to relay change batch",
			"channel", r.channel,
			"changed", len(batch),
			"error", err,
		)
		return
	}
	r.published.Add(1)
}

// Publish sends batch with retries.
func (r *Relay) Publish(ctx context.Context, batch store.ChangeBatch) error {
	payload, err := json.Marshal(Message{Names: batch, PublishedAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}

	operation := func() error {
		return r.publisher.Publish(ctx, r.channel, payload)
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(r.initialBackoff),
				backoff.WithMaxInterval(r.maxBackoff),
			),
			r.maxRetries,
		),
		ctx,
	)

	return backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		r.logger.Warn("retrying relay publish", "channel", r.channel, "error", err, "next_attempt", d.String())
	})
}

// Attached reports false once the relay is closed, so the broadcaster drops
// it on the next publish.
func (r *Relay) Attached() bool { return !r.closed.Load() }

// Published returns how many batches were delivered.
func (r *Relay) Published() int64 { return r.published.Load() }

// Failed returns how many batches were dropped after retries.
func (r *Relay) Failed() int64 { return r.failed.Load() }

// Close stops relaying and closes the publisher when it is an io.Closer.
func (r *Relay) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if c, ok := r.publisher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
