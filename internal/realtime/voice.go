package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/conversation"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/tts"
)

const defaultPlaybackWait = 2 * time.Minute

var ErrPlaybackTimeout = errors.New("playback completion not reported")

func VoiceChannel(sessionID string) string { return "voice:" + sessionID }

// Synthesizer turns text into audio.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, req tts.Request) (tts.Audio, error)
}

type EventSink interface {
	Emit(msg SSEMessage)
}

// VoiceBridge binds one conversation to the browser: commands go down the session channel and
// playback completions come back through Complete.
type VoiceBridge struct {
	log     *logger.Logger
	sink    EventSink
	synth   Synthesizer
	channel string
	maxWait time.Duration

	mu      sync.Mutex
	waiters map[string]chan error
}

type BridgeOption func(*VoiceBridge)

func WithMaxPlaybackWait(d time.Duration) BridgeOption {
	return func(b *VoiceBridge) {
		if d > 0 {
			b.maxWait = d
		}
	}
}

func NewVoiceBridge(log *logger.Logger, sink EventSink, synth Synthesizer, sessionID string, opts ...BridgeOption) *VoiceBridge {
	b := &VoiceBridge{
		log:     log.With("component", "VoiceBridge", "session_id", sessionID),
		sink:    sink,
		synth:   synth,
		channel: VoiceChannel(sessionID),
		maxWait: defaultPlaybackWait,
		waiters: map[string]chan error{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *VoiceBridge) Channel() string { return b.channel }

func (b *VoiceBridge) emit(event SSEEvent, data any) {
	b.sink.Emit(SSEMessage{Channel: b.channel, Event: event, Data: data})
}

// Complete resolves a pending playback. It returns false for unknown or finished ids.
func (b *VoiceBridge) Complete(playbackID, errMsg string) bool {
	b.mu.Lock()
	ch, ok := b.waiters[playbackID]
	delete(b.waiters, playbackID)
	b.mu.Unlock()
	if !ok {
		return false
	}
	if errMsg != "" {
		ch <- fmt.Errorf("client playback failed: %s", errMsg)
	} else {
		ch <- nil
	}
	return true
}

func (b *VoiceBridge) register() (string, chan error) {
	id := uuid.NewString()
	ch := make(chan error, 1)
	b.mu.Lock()
	b.waiters[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *VoiceBridge) forget(id string) {
	b.mu.Lock()
	delete(b.waiters, id)
	b.mu.Unlock()
}

// await blocks until the browser reports completion, ctx ends, or maxWait passes.
func (b *VoiceBridge) await(ctx context.Context, id string, ch chan error) error {
	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		b.forget(id)
		b.emit(SSEEventAudioStop, map[string]any{"playbackId": id})
		return ctx.Err()
	case <-timer.C:
		b.forget(id)
		b.emit(SSEEventAudioStop, map[string]any{"playbackId": id})
		return ErrPlaybackTimeout
	}
}

// ---- capture ----

type remoteCapture struct {
	b      *VoiceBridge
	active bool
}

// Capture asks the browser to open and close its recognizer.
func (b *VoiceBridge) Capture() conversation.SpeechCapture { return &remoteCapture{b: b} }

func (c *remoteCapture) Start(conversation.CaptureSink) error {
	if c.active {
		return nil
	}
	c.active = true
	c.b.emit(SSEEventCaptureStart, nil)
	return nil
}

func (c *remoteCapture) Stop() error {
	if !c.active {
		return nil
	}
	c.active = false
	c.b.emit(SSEEventCaptureStop, nil)
	return nil
}

// ---- playback ----

type remotePlayback struct{ b *VoiceBridge }

// Playback synthesizes audio server side and streams it to the browser.
func (b *VoiceBridge) Playback() conversation.AudioPlayback { return remotePlayback{b: b} }

func (p remotePlayback) Play(ctx context.Context, text string) error {
	if p.b.synth == nil {
		return tts.ErrNotConfigured
	}
	audio, err := p.b.synth.TextToSpeech(ctx, tts.Request{Text: text})
	if err != nil {
		return err
	}
	id, ch := p.b.register()
	p.b.emit(SSEEventAudioPlay, map[string]any{
		"playbackId":  id,
		"contentType": audio.ContentType,
		"audio":       base64.StdEncoding.EncodeToString(audio.Data),
	})
	return p.b.await(ctx, id, ch)
}

// ---- fallback ----

type browserSpeech struct{ b *VoiceBridge }

// Fallback has the browser's built-in synthesizer read the text.
func (b *VoiceBridge) Fallback() conversation.FallbackSpeaker { return browserSpeech{b: b} }

func (s browserSpeech) Speak(ctx context.Context, text string) error {
	id, ch := s.b.register()
	s.b.emit(SSEEventSpeechSynthesize, map[string]any{"playbackId": id, "text": text})
	return s.b.await(ctx, id, ch)
}

// ---- observer ----

// Observer mirrors transcript and state changes onto the session channel.
func (b *VoiceBridge) Observer() conversation.Observer { return bridgeObserver{b: b} }

type bridgeObserver struct{ b *VoiceBridge }

func (o bridgeObserver) MessageAppended(_ string, msg types.ChatMessage) {
	o.b.emit(SSEEventTranscriptAppend, msg)
}

func (o bridgeObserver) StateChanged(_ string, snap conversation.Snapshot) {
	o.b.emit(SSEEventSessionState, snap)
}
