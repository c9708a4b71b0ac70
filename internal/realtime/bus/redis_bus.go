// Package bus relays voice-session SSE messages between API instances over Redis pub/sub,
// so a browser attached to one instance hears a conversation driven by another.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	"github.com/yungbote/ielts-tutor-backend/internal/pkg/httpx"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/realtime"
)

const DefaultChannel = "ielts:sse"

var errClosed = errors.New("sse bus closed")

type Config struct {
	Addr    string
	Channel string
}

// envelope is the wire form on the Redis channel.
type envelope struct {
	Origin string              `json:"origin"`
	SentAt int64               `json:"sentAt"`
	Msg    realtime.SSEMessage `json:"msg"`
}

// RedisBus publishes SSE messages and forwards every message on the channel to a callback.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
	retry   httpx.Backoff
}

func NewRedisBus(log *logger.Logger, cfg Config) (*RedisBus, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	origin := uuid.NewString()
	return &RedisBus{
		log:     log.With("service", "RedisSSEBus", "channel", channel, "origin", origin),
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		retry:   httpx.Backoff{Base: 250 * time.Millisecond, Cap: 10 * time.Second},
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if b == nil || b.rdb == nil {
		return errClosed
	}
	raw, err := encode(b.origin, msg, time.Now())
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes and hands each message to onMsg until ctx ends. The first
// subscription is confirmed before returning; later drops are resubscribed with backoff.
func (b *RedisBus) StartForwarder(ctx context.Context, onMsg func(realtime.SSEMessage)) error {
	if b == nil || b.rdb == nil {
		return errClosed
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub, err := b.subscribe(ctx)
	if err != nil {
		return err
	}
	go b.forward(ctx, sub, onMsg)
	return nil
}

func (b *RedisBus) subscribe(ctx context.Context) (*goredis.PubSub, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	return sub, nil
}

func (b *RedisBus) forward(ctx context.Context, sub *goredis.PubSub, onMsg func(realtime.SSEMessage)) {
	for attempt := 0; ; {
		b.drain(ctx, sub, onMsg)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		for {
			if err := httpx.Sleep(ctx, b.retry.Delay(attempt, nil)); err != nil {
				return
			}
			attempt++
			next, err := b.subscribe(ctx)
			if err == nil {
				b.log.Info("SSE bus resubscribed", "attempts", attempt)
				sub, attempt = next, 0
				break
			}
			b.log.Warn("SSE bus resubscribe failed", "attempt", attempt, "error", err)
		}
	}
}

func (b *RedisBus) drain(ctx context.Context, sub *goredis.PubSub, onMsg func(realtime.SSEMessage)) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			env, err := decode([]byte(m.Payload))
			if err != nil {
				b.log.Warn("Bad SSE bus payload", "error", err)
				continue
			}
			if env.SentAt > 0 {
				observability.Current().ObserveSSEBusLag(time.Since(time.UnixMilli(env.SentAt)))
			}
			onMsg(env.Msg)
		}
	}
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func encode(origin string, msg realtime.SSEMessage, at time.Time) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, SentAt: at.UnixMilli(), Msg: msg})
}

func decode(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	if env.Msg.Channel == "" {
		return envelope{}, fmt.Errorf("sse bus payload without channel")
	}
	return env, nil
}
