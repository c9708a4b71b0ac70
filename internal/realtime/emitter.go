package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// Publisher fans messages out across instances. The Redis bus implements it.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

const emitQueueSize = 256

// Emitter delivers SSE messages without blocking the caller. With a publisher the messages
// go through a single ordered worker; otherwise straight to the local hub.
type Emitter struct {
	log   *logger.Logger
	hub   *SSEHub
	pub   Publisher
	queue chan SSEMessage
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func NewEmitter(log *logger.Logger, hub *SSEHub, pub Publisher) *Emitter {
	e := &Emitter{
		log: log.With("component", "SSEEmitter"),
		hub: hub,
		pub: pub,
	}
	if pub != nil {
		e.queue = make(chan SSEMessage, emitQueueSize)
		e.stop = make(chan struct{})
		e.wg.Add(1)
		go e.run()
	}
	return e
}

func (e *Emitter) Emit(msg SSEMessage) {
	if e.pub == nil {
		if e.hub != nil {
			e.hub.Broadcast(msg)
		}
		return
	}
	select {
	case e.queue <- msg:
	default:
		e.log.Warn("Dropping SSE message; emit queue full", "channel", msg.Channel, "event", msg.Event)
	}
}

func (e *Emitter) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case msg := <-e.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := e.pub.Publish(ctx, msg)
			cancel()
			if err != nil {
				e.log.Warn("SSE publish failed; delivering locally", "error", err, "event", msg.Event)
				if e.hub != nil {
					e.hub.Broadcast(msg)
				}
			}
		}
	}
}

func (e *Emitter) Close() {
	if e.pub == nil {
		return
	}
	e.once.Do(func() {
		close(e.stop)
		e.wg.Wait()
	})
}
