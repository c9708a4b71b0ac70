package realtime

import (
	"sync"

	"github.com/yungbote/ielts-tutor-backend/internal/modules/conversation"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// VoiceSessions owns one VoiceBridge per conversation so browser callbacks can find it.
type VoiceSessions struct {
	log   *logger.Logger
	sink  EventSink
	synth Synthesizer
	opts  []BridgeOption

	mu      sync.RWMutex
	bridges map[string]*VoiceBridge
}

func NewVoiceSessions(log *logger.Logger, sink EventSink, synth Synthesizer, opts ...BridgeOption) *VoiceSessions {
	return &VoiceSessions{
		log:     log,
		sink:    sink,
		synth:   synth,
		opts:    opts,
		bridges: map[string]*VoiceBridge{},
	}
}

// Deps binds the browser-facing capabilities for sessionID.
func (v *VoiceSessions) Deps(sessionID string) conversation.Deps {
	b := NewVoiceBridge(v.log, v.sink, v.synth, sessionID, v.opts...)
	v.mu.Lock()
	v.bridges[sessionID] = b
	v.mu.Unlock()
	return conversation.Deps{
		Capture:  b.Capture(),
		Playback: b.Playback(),
		Fallback: b.Fallback(),
		Observer: b.Observer(),
	}
}

func (v *VoiceSessions) Lookup(sessionID string) (*VoiceBridge, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.bridges[sessionID]
	return b, ok
}

func (v *VoiceSessions) Forget(sessionID string) {
	v.mu.Lock()
	delete(v.bridges, sessionID)
	v.mu.Unlock()
}
