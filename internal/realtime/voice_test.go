package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/conversation"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/tts"
)

type chanSink chan SSEMessage

func (c chanSink) Emit(msg SSEMessage) { c <- msg }

type fakeSynth struct {
	audio tts.Audio
	err   error
}

func (f fakeSynth) TextToSpeech(context.Context, tts.Request) (tts.Audio, error) {
	return f.audio, f.err
}

func TestRemoteCaptureIsIdempotent(t *testing.T) {
	sink := make(chanSink, 8)
	b := NewVoiceBridge(mustTestLogger(t), sink, nil, "s1")
	capture := b.Capture()

	_ = capture.Start(nil)
	_ = capture.Start(nil)
	_ = capture.Stop()
	_ = capture.Stop()

	if len(sink) != 2 {
		t.Fatalf("expected one start and one stop, got %d events", len(sink))
	}
	if m := <-sink; m.Event != SSEEventCaptureStart || m.Channel != "voice:s1" {
		t.Fatalf("unexpected %+v", m)
	}
	if m := <-sink; m.Event != SSEEventCaptureStop {
		t.Fatalf("unexpected %+v", m)
	}
}

func TestRemotePlaybackWaitsForCompletion(t *testing.T) {
	sink := make(chanSink, 8)
	b := NewVoiceBridge(mustTestLogger(t), sink, fakeSynth{audio: tts.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"}}, "s1")

	result := make(chan error, 1)
	go func() { result <- b.Playback().Play(context.Background(), "Hello") }()

	msg := recvMessage(t, sink, time.Second)
	data := msg.Data.(map[string]any)
	if msg.Event != SSEEventAudioPlay || data["contentType"] != "audio/mpeg" {
		t.Fatalf("unexpected %+v", msg)
	}
	if data["audio"] != base64.StdEncoding.EncodeToString([]byte("mp3")) {
		t.Fatalf("audio not base64 encoded")
	}
	id := data["playbackId"].(string)
	if b.Complete("unknown", "") {
		t.Fatalf("unknown ids must be rejected")
	}
	if !b.Complete(id, "") {
		t.Fatalf("Complete returned false")
	}
	if err := <-result; err != nil {
		t.Fatalf("Play: %v", err)
	}
	if b.Complete(id, "") {
		t.Fatalf("second completion must be rejected")
	}
}

func TestRemotePlaybackFailures(t *testing.T) {
	log := mustTestLogger(t)

	t.Run("synthesis error", func(t *testing.T) {
		b := NewVoiceBridge(log, make(chanSink, 8), fakeSynth{err: tts.ErrFallbackRequired}, "s1")
		if err := b.Playback().Play(context.Background(), "x"); !errors.Is(err, tts.ErrFallbackRequired) {
			t.Fatalf("expected fallback error, got %v", err)
		}
	})

	t.Run("client reports error", func(t *testing.T) {
		sink := make(chanSink, 8)
		b := NewVoiceBridge(log, sink, fakeSynth{}, "s1")
		result := make(chan error, 1)
		go func() { result <- b.Playback().Play(context.Background(), "x") }()
		msg := recvMessage(t, sink, time.Second)
		b.Complete(msg.Data.(map[string]any)["playbackId"].(string), "autoplay blocked")
		if err := <-result; err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("cancel emits stop", func(t *testing.T) {
		sink := make(chanSink, 8)
		b := NewVoiceBridge(log, sink, fakeSynth{}, "s1")
		ctx, cancel := context.WithCancel(context.Background())
		result := make(chan error, 1)
		go func() { result <- b.Playback().Play(ctx, "x") }()
		recvMessage(t, sink, time.Second)
		cancel()
		if err := <-result; !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
		if m := recvMessage(t, sink, time.Second); m.Event != SSEEventAudioStop {
			t.Fatalf("expected audio.stop, got %s", m.Event)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		sink := make(chanSink, 8)
		b := NewVoiceBridge(log, sink, nil, "s1", WithMaxPlaybackWait(20*time.Millisecond))
		if err := b.Fallback().Speak(context.Background(), "x"); !errors.Is(err, ErrPlaybackTimeout) {
			t.Fatalf("expected timeout, got %v", err)
		}
		if m := recvMessage(t, sink, time.Second); m.Event != SSEEventSpeechSynthesize {
			t.Fatalf("expected speech.synthesize, got %s", m.Event)
		}
	})
}

func TestBridgeObserver(t *testing.T) {
	sink := make(chanSink, 8)
	b := NewVoiceBridge(mustTestLogger(t), sink, nil, "s1")
	obs := b.Observer()
	obs.MessageAppended("s1", types.ChatMessage{ID: "m1", Role: types.RoleUser, Text: "hi"})
	obs.StateChanged("s1", conversation.Snapshot{State: conversation.StateListening})

	if m := <-sink; m.Event != SSEEventTranscriptAppend || m.Data.(types.ChatMessage).ID != "m1" {
		t.Fatalf("unexpected %+v", m)
	}
	if m := <-sink; m.Event != SSEEventSessionState || m.Data.(conversation.Snapshot).State != conversation.StateListening {
		t.Fatalf("unexpected %+v", m)
	}
}
