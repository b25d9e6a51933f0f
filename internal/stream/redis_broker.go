package stream

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisBroker carries change events over Redis pub/sub, one channel per
// table. Pub/sub is fire-and-forget: a subscriber that was disconnected
// gets nothing replayed, which is exactly the contract consumers are
// written against.
type redisBroker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
}

type redisSubscription struct {
	broker *redisBroker
	pubsub *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
}

// NewRedisBroker creates a broker over the given Redis client.
func NewRedisBroker(client *redis.Client, channelPrefix string, logger *zap.Logger) Broker {
	return &redisBroker{
		client: client,
		prefix: channelPrefix,
		logger: logger,
		subs:   make(map[*redisSubscription]struct{}),
	}
}

func (b *redisBroker) channel(table string) string {
	return b.prefix + ":" + table
}

func (b *redisBroker) Publish(ctx context.Context, event ChangeEvent) error {
	payload, err := jsoniter.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel(event.Table), payload).Err()
}

func (b *redisBroker) Subscribe(table string, op Op, filter Filter, handler Handler) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, b.channel(table))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{broker: b, pubsub: pubsub, cancel: cancel}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			var event ChangeEvent
			if err := jsoniter.UnmarshalFromString(msg.Payload, &event); err != nil {
				b.logger.Warn("malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if matches(event, table, op, filter) {
				handler(event)
			}
		}
	}()

	return sub, nil
}

func (b *redisBroker) Close() {
	b.mu.Lock()
	subs := make([]*redisSubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (s *redisSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
	})
}
