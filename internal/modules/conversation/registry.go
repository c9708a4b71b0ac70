package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

var errSessionNotFound = pkgerrors.NotFound("conversation not found")

// OpenRequest describes a new session. Location is the learner's zone for the greeting.
type OpenRequest struct {
	UserID   string
	UserName string
	Location *time.Location
}

type session struct {
	ctrl     *Controller
	lastSeen time.Time
	streams  int
}

// Registry holds the open controllers keyed by session id. Sessions with no attached stream
// and no request for IdleTimeout are closed by the reaper.
type Registry struct {
	log     *logger.Logger
	timings Timings
	clock   Clock
	onEvict func(sessionID string)

	mu       sync.Mutex
	sessions map[string]*session
	reaper   Timer
}

type RegistryOption func(*Registry)

func WithRegistryClock(c Clock) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithOnEvict runs after the reaper closes a session, so per-session resources can be freed.
func WithOnEvict(f func(sessionID string)) RegistryOption {
	return func(r *Registry) { r.onEvict = f }
}

func NewRegistry(log *logger.Logger, timings Timings, opts ...RegistryOption) *Registry {
	r := &Registry{
		log:      log.With("component", "ConversationRegistry"),
		timings:  timings.withDefaults(),
		clock:    RealClock(),
		sessions: map[string]*session{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open creates a session for the user. build receives the new session id so capabilities
// can be bound to it before the controller exists.
func (r *Registry) Open(req OpenRequest, build func(sessionID string) Deps) *Controller {
	id := uuid.NewString()
	ctrl := NewController(r.log, Config{
		SessionID: id,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Timings:   r.timings,
		Location:  req.Location,
	}, build(id))

	r.mu.Lock()
	r.sessions[id] = &session{ctrl: ctrl, lastSeen: r.clock.Now()}
	r.mu.Unlock()
	r.log.Info("conversation opened", "session_id", id, "user_id", req.UserID)
	return ctrl
}

// Get returns the session only to its owner and marks it as in use.
func (r *Registry) Get(sessionID, userID string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.ctrl.UserID() != userID {
		return nil, errSessionNotFound
	}
	s.lastSeen = r.clock.Now()
	return s.ctrl, nil
}

// Attach records an open event stream; the session is never idle while one is attached.
// The returned func detaches it and restarts the idle clock.
func (r *Registry) Attach(sessionID string) (detach func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return func() {}
	}
	s.streams++
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			s.streams--
			s.lastSeen = r.clock.Now()
		})
	}
}

func (r *Registry) Close(sessionID, userID string) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok || s.ctrl.UserID() != userID {
		r.mu.Unlock()
		return errSessionNotFound
	}
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	s.ctrl.Close()
	r.log.Info("conversation closed", "session_id", sessionID, "user_id", userID)
	return nil
}

// Sweep closes every session that has been idle for at least IdleTimeout and returns how
// many it closed.
func (r *Registry) Sweep() int {
	now := r.clock.Now()
	r.mu.Lock()
	var idle []*Controller
	for id, s := range r.sessions {
		if s.streams > 0 || now.Sub(s.lastSeen) < r.timings.IdleTimeout {
			continue
		}
		idle = append(idle, s.ctrl)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, ctrl := range idle {
		ctrl.Close()
		if r.onEvict != nil {
			r.onEvict(ctrl.ID())
		}
		r.log.Info("idle conversation closed", "session_id", ctrl.ID(), "user_id", ctrl.UserID())
	}
	return len(idle)
}

// StartReaper sweeps every quarter of IdleTimeout until ctx ends.
func (r *Registry) StartReaper(ctx context.Context) {
	interval := r.timings.IdleTimeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	var tick func()
	tick = func() {
		if ctx.Err() != nil {
			return
		}
		r.Sweep()
		r.mu.Lock()
		if ctx.Err() == nil {
			r.reaper = r.clock.AfterFunc(interval, tick)
		}
		r.mu.Unlock()
	}
	r.mu.Lock()
	r.reaper = r.clock.AfterFunc(interval, tick)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.reaper != nil {
			r.reaper.Stop()
			r.reaper = nil
		}
	}()
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Controller, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s.ctrl)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, ctrl := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctrl.Close()
		}()
	}
	wg.Wait()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
