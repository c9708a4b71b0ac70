package aiengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/pkg/httpx"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type Sleeper func(ctx context.Context, d time.Duration) error

// Invoker runs generations against a CredentialPool. Quota errors rotate to the next key
// with exponential backoff; at most one attempt per key is made.
type Invoker struct {
	engine    Engine
	log       *logger.Logger
	baseDelay time.Duration
	sleep     Sleeper

	mu   sync.Mutex
	pool CredentialPool
}

type InvokerOption func(*Invoker)

func WithSleeper(s Sleeper) InvokerOption {
	return func(i *Invoker) {
		if s != nil {
			i.sleep = s
		}
	}
}

func WithBaseDelay(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.baseDelay = d }
}

func NewInvoker(engine Engine, pool CredentialPool, baseLog *logger.Logger, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		engine:    engine,
		log:       baseLog.With("component", "AIInvoker", "engine", engine.Name()),
		baseDelay: time.Second,
		sleep:     httpx.Sleep,
		pool:      pool,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

func (i *Invoker) EngineName() string { return i.engine.Name() }

func (i *Invoker) Pool() CredentialPool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pool
}

func (i *Invoker) setPool(p CredentialPool) {
	i.mu.Lock()
	i.pool = p
	i.mu.Unlock()
}

func (i *Invoker) Generate(ctx context.Context, req Request) (string, error) {
	pool := i.Pool()
	if pool.Len() == 0 {
		return "", pkgerrors.ErrCredentialsExhausted
	}

	var lastErr error
	for attempt := 0; attempt < pool.Len(); attempt++ {
		key, _ := pool.Current()
		out, err := i.engine.Generate(ctx, key, req)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !httpx.QuotaExhausted(err) {
			return "", fmt.Errorf("%w: %w", pkgerrors.ErrUpstream, err)
		}
		if attempt >= pool.Len()-1 {
			break
		}

		pool = pool.Rotate()
		i.setPool(pool)
		observability.Current().IncKeyRotation(i.engine.Name())

		delay := i.baseDelay << attempt
		i.log.Warn("AI quota hit, rotating key",
			"attempt", attempt+1,
			"keys", pool.Len(),
			"key_index", pool.Index(),
			"sleep", delay.String(),
			"error", err.Error(),
		)
		if err := i.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %w", pkgerrors.ErrCredentialsExhausted, lastErr)
}
