package conversation

import (
	"context"
	"time"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
)

// CaptureSink receives recognition events. The controller implements it.
type CaptureSink interface {
	OnSpeechStart()
	OnPartial(text string)
	OnFinal(text string)
	OnNoSpeech()
	OnCaptureError(kind string, err error)
}

// SpeechCapture owns the microphone. Start and Stop are called with the controller
// lock held and must not call back into the sink synchronously. Stop is idempotent.
type SpeechCapture interface {
	Start(sink CaptureSink) error
	Stop() error
}

// AudioPlayback speaks text and blocks until playback completes or ctx is cancelled.
type AudioPlayback interface {
	Play(ctx context.Context, text string) error
}

// FallbackSpeaker is the basic synthesizer used when AudioPlayback fails.
type FallbackSpeaker interface {
	Speak(ctx context.Context, text string) error
}

type Responder interface {
	ChatTurn(ctx context.Context, history []types.ChatTurn, message string, variant aigateway.Variant) (string, error)
}

// TurnLogger records completed exchanges. Failures are ignored.
type TurnLogger interface {
	LogTurn(ctx context.Context, userID, userMessage, reply string) error
}

// Observer is notified of transcript and state changes with the controller lock held.
// Implementations must not block or call back into the controller.
type Observer interface {
	MessageAppended(sessionID string, msg types.ChatMessage)
	StateChanged(sessionID string, snap Snapshot)
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is backed by the time package.
func RealClock() Clock { return realClock{} }
