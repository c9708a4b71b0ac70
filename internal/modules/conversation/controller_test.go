package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

// ---- fakes ----

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due callbacks in deadline order on the caller's goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *fakeClock) lastTimer() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

type fakeCapture struct {
	mu       sync.Mutex
	starts   int
	stops    int
	active   bool
	startErr error
}

func (f *fakeCapture) Start(CaptureSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.active = true
	return nil
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		f.stops++
	}
	f.active = false
	return nil
}

func (f *fakeCapture) counts() (starts, stops int, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.active
}

type fakePlayback struct {
	mu     sync.Mutex
	played []string
	err    error
}

func (f *fakePlayback) Play(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, text)
	return f.err
}

func (f *fakePlayback) Speak(ctx context.Context, text string) error { return f.Play(ctx, text) }

func (f *fakePlayback) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

type turnCall struct {
	history []types.ChatTurn
	message string
	variant aigateway.Variant
}

type fakeResponder struct {
	mu    sync.Mutex
	calls []turnCall
	gate  chan struct{}
	reply string
	err   error
}

func (f *fakeResponder) ChatTurn(ctx context.Context, history []types.ChatTurn, message string, variant aigateway.Variant) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, turnCall{history: history, message: message, variant: variant})
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "Reply to " + message, nil
}

func (f *fakeResponder) callList() []turnCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turnCall(nil), f.calls...)
}

type turnRecorder struct {
	mu    sync.Mutex
	turns []string
}

func (r *turnRecorder) LogTurn(_ context.Context, userID, userMessage, reply string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, userID+"|"+userMessage+"|"+reply)
	return nil
}

type harness struct {
	ctrl      *Controller
	clock     *fakeClock
	capture   *fakeCapture
	playback  *fakePlayback
	fallback  *fakePlayback
	responder *fakeResponder
	turns     *turnRecorder
}

var morning = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:     newFakeClock(morning),
		capture:   &fakeCapture{},
		playback:  &fakePlayback{},
		fallback:  &fakePlayback{},
		responder: &fakeResponder{},
		turns:     &turnRecorder{},
	}
	h.ctrl = NewController(logger.NewNop(), Config{
		SessionID: "s1",
		UserID:    "linh",
		UserName:  "Linh",
		Location:  time.UTC,
	}, Deps{
		Responder:  h.responder,
		Capture:    h.capture,
		Playback:   h.playback,
		Fallback:   h.fallback,
		Clock:      h.clock,
		TurnLogger: h.turns,
		Pick:       func(int) int { return 0 },
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startVoice enters voice mode, lets the welcome finish and opens the microphone.
func (h *harness) startVoice(t *testing.T) {
	t.Helper()
	if err := h.ctrl.EnterVoiceMode(); err != nil {
		t.Fatalf("EnterVoiceMode: %v", err)
	}
	waitFor(t, "welcome playback", func() bool { return h.ctrl.Snapshot().State == StateIdle })
	if err := h.ctrl.StartListening(); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
}

func lastMessage(s Snapshot) types.ChatMessage {
	return s.Transcript[len(s.Transcript)-1]
}

// ---- tests ----

func TestGreetingBuckets(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{0, "Good evening"},
		{4, "Good evening"},
		{5, "Good morning"},
		{11, "Good morning"},
		{12, "Good afternoon"},
		{16, "Good afternoon"},
		{17, "Good evening"},
		{21, "Good evening"},
		{23, "Good evening"},
	}
	for _, tc := range cases {
		at := time.Date(2025, 1, 1, tc.hour, 30, 0, 0, time.UTC)
		if got := Greeting(at); got != tc.want {
			t.Fatalf("hour %d: got %q want %q", tc.hour, got, tc.want)
		}
	}
	line := WelcomeLine("  ", morning, func(int) int { return 99 })
	if !strings.HasPrefix(line, "Good morning, there!") {
		t.Fatalf("unexpected fallback welcome %q", line)
	}
}

func TestWelcomeDeliveredOnce(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.EnterVoiceMode(); err != nil {
		t.Fatalf("EnterVoiceMode: %v", err)
	}
	waitFor(t, "welcome playback", func() bool { return h.ctrl.Snapshot().State == StateIdle })

	snap := h.ctrl.Snapshot()
	if len(snap.Transcript) != 1 {
		t.Fatalf("expected one welcome message, got %+v", snap.Transcript)
	}
	welcome := snap.Transcript[0]
	if welcome.Kind != types.KindWelcome || !strings.Contains(welcome.Text, "Linh") || !strings.Contains(welcome.Text, "Good morning") {
		t.Fatalf("unexpected welcome %+v", welcome)
	}
	if played := h.playback.texts(); len(played) != 1 || played[0] != welcome.Text {
		t.Fatalf("welcome should be spoken once, got %v", played)
	}

	_ = h.ctrl.EnterTextMode()
	_ = h.ctrl.EnterVoiceMode()
	if n := len(h.ctrl.Snapshot().Transcript); n != 1 {
		t.Fatalf("welcome repeated, transcript has %d messages", n)
	}
	if snap.HasDetectedSpeech {
		t.Fatalf("welcome must not count as speech")
	}
}

func TestTextModeTurn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.ctrl.SendText(ctx, "   "); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("blank message should be invalid, got %v", err)
	}
	reply, err := h.ctrl.SendText(ctx, "What is a band score?")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if reply.Role != types.RoleAssistant || reply.Text != "Reply to What is a band score?" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	snap := h.ctrl.Snapshot()
	if len(snap.Transcript) != 2 || snap.Transcript[0].Role != types.RoleUser {
		t.Fatalf("user message must precede reply: %+v", snap.Transcript)
	}
	if snap.State != StateIdle || snap.PendingTimers != 0 || h.clock.Pending() != 0 {
		t.Fatalf("text mode must not schedule timers: %+v", snap)
	}
	if len(h.playback.texts()) != 0 {
		t.Fatalf("text mode must not speak")
	}
	calls := h.responder.callList()
	if calls[0].variant != aigateway.VariantText || len(calls[0].history) != 0 {
		t.Fatalf("unexpected call %+v", calls[0])
	}

	_, _ = h.ctrl.SendText(ctx, "And band 7?")
	calls = h.responder.callList()
	if got := calls[1].history; len(got) != 2 || got[0].Role != "user" || got[1].Role != "model" {
		t.Fatalf("history should carry the previous exchange: %+v", got)
	}
	waitFor(t, "turn log", func() bool {
		h.turns.mu.Lock()
		defer h.turns.mu.Unlock()
		return len(h.turns.turns) == 2
	})
}

func TestSilenceEscalationForcesStop(t *testing.T) {
	h := newHarness(t)
	h.startVoice(t)

	h.clock.Advance(10 * time.Second)
	snap := h.ctrl.Snapshot()
	if snap.SilenceStage != 1 || lastMessage(snap).Text != SilencePrompt(1) || lastMessage(snap).Kind != types.KindPrompt {
		t.Fatalf("stage 1 not reached: %+v", snap)
	}
	h.clock.Advance(10 * time.Second)
	snap = h.ctrl.Snapshot()
	if snap.SilenceStage != 2 || lastMessage(snap).Text != SilencePrompt(2) {
		t.Fatalf("stage 2 not reached: %+v", snap)
	}
	h.clock.Advance(10 * time.Second)
	snap = h.ctrl.Snapshot()
	if snap.SilenceStage != 3 || lastMessage(snap).Text != ClosingNotice {
		t.Fatalf("closing notice not delivered: %+v", snap)
	}
	if !snap.Recording || snap.Mode != ModeVoice {
		t.Fatalf("listening should continue through the prompts: %+v", snap)
	}

	h.clock.Advance(3*time.Second - time.Millisecond)
	if h.ctrl.Snapshot().Mode != ModeVoice {
		t.Fatalf("forced stop fired early")
	}
	h.clock.Advance(time.Millisecond)
	snap = h.ctrl.Snapshot()
	if snap.Mode != ModeText || snap.Recording || snap.KeepRecording || snap.SilenceStage != 0 {
		t.Fatalf("forced stop did not revert to text mode: %+v", snap)
	}
	if msg := lastMessage(snap); msg.Role != types.RoleSystem || msg.Text != ForcedStopNotice {
		t.Fatalf("expected system notice, got %+v", msg)
	}
	if snap.PendingTimers != 0 || h.clock.Pending() != 0 {
		t.Fatalf("timers left after forced stop: %d", h.clock.Pending())
	}
	if _, stops, active := h.capture.counts(); stops != 1 || active {
		t.Fatalf("microphone not released")
	}
	waitFor(t, "closing notice playback", func() bool {
		for _, p := range h.playback.texts() {
			if p == ClosingNotice {
				return true
			}
		}
		return false
	})
}

func TestSpeechResetsEscalation(t *testing.T) {
	h := newHarness(t)
	h.startVoice(t)

	h.clock.Advance(20 * time.Second)
	if h.ctrl.Snapshot().SilenceStage != 2 {
		t.Fatalf("expected stage 2")
	}
	h.ctrl.OnSpeechStart()
	snap := h.ctrl.Snapshot()
	if snap.SilenceStage != 0 || !snap.HasDetectedSpeech {
		t.Fatalf("speech should reset the stage: %+v", snap)
	}
	h.clock.Advance(10*time.Second - time.Millisecond)
	if h.ctrl.Snapshot().SilenceStage != 0 {
		t.Fatalf("escalation must restart from the moment of speech")
	}
	h.clock.Advance(time.Millisecond)
	if h.ctrl.Snapshot().SilenceStage != 1 {
		t.Fatalf("expected stage 1 ten seconds after speech")
	}
}

func TestSpeechDuringClosingGraceCancelsStop(t *testing.T) {
	h := newHarness(t)
	h.startVoice(t)

	h.clock.Advance(30 * time.Second)
	if h.ctrl.Snapshot().SilenceStage != 3 {
		t.Fatalf("expected closing stage")
	}
	h.ctrl.OnPartial("well I think")
	h.clock.Advance(3 * time.Second)
	snap := h.ctrl.Snapshot()
	if snap.Mode != ModeVoice || !snap.Recording || snap.SilenceStage != 0 || snap.Partial != "well I think" {
		t.Fatalf("speech should cancel the forced stop: %+v", snap)
	}
	for _, m := range snap.Transcript {
		if m.Text == ForcedStopNotice {
			t.Fatalf("forced stop notice must not appear")
		}
	}
}

func TestStaleSilenceCallbackIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.startVoice(t)

	stale := h.clock.lastTimer()
	h.ctrl.OnSpeechStart()
	stale.f()
	if h.ctrl.Snapshot().SilenceStage != 0 {
		t.Fatalf("superseded timer callback changed the stage")
	}
}

func TestManualStopClearsEverything(t *testing.T) {
	for stage := 0; stage <= 3; stage++ {
		t.Run("stage_"+string(rune('0'+stage)), func(t *testing.T) {
			h := newHarness(t)
			h.startVoice(t)
			h.ctrl.OnSpeechStart()
			h.clock.Advance(time.Duration(stage) * 10 * time.Second)
			if got := h.ctrl.Snapshot().SilenceStage; got != stage {
				t.Fatalf("setup: stage %d, want %d", got, stage)
			}

			if err := h.ctrl.StopListening(); err != nil {
				t.Fatalf("StopListening: %v", err)
			}
			snap := h.ctrl.Snapshot()
			if snap.Recording || snap.KeepRecording || snap.SilenceStage != 0 || snap.State != StateIdle {
				t.Fatalf("unexpected state after stop: %+v", snap)
			}
			if snap.PendingTimers != 0 || h.clock.Pending() != 0 {
				t.Fatalf("timers left after manual stop: %d", h.clock.Pending())
			}
			if _, _, active := h.capture.counts(); active {
				t.Fatalf("microphone still held")
			}
			if err := h.ctrl.StopListening(); err != nil {
				t.Fatalf("second stop should be a no-op: %v", err)
			}
		})
	}
}

func TestFinalTranscriptTurnAndAutoResume(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.responder.gate = gate
	h.startVoice(t)

	h.ctrl.OnFinal("I like reading books")
	snap := h.ctrl.Snapshot()
	if snap.State != StateAwaitingReply || !snap.Recording || lastMessage(snap).Role != types.RoleUser {
		t.Fatalf("final segment should be submitted while capture stays open: %+v", snap)
	}
	if _, stops, _ := h.capture.counts(); stops != 0 {
		t.Fatalf("capture stopped before the reply")
	}
	close(gate)

	waitFor(t, "reply playback", func() bool {
		s := h.ctrl.Snapshot()
		return s.State == StateIdle && s.PendingTimers == 1
	})
	snap = h.ctrl.Snapshot()
	if msg := lastMessage(snap); msg.Role != types.RoleAssistant || msg.Text != "Reply to I like reading books" {
		t.Fatalf("unexpected reply %+v", msg)
	}
	if starts, stops, _ := h.capture.counts(); starts != 1 || stops != 1 {
		t.Fatalf("reply should release the microphone: starts=%d stops=%d", starts, stops)
	}
	if calls := h.responder.callList(); calls[0].variant != aigateway.VariantSpeaking || len(calls[0].history) != 0 {
		t.Fatalf("voice turns use the speaking tutor without scripted lines: %+v", calls[0])
	}

	h.clock.Advance(799 * time.Millisecond)
	if h.ctrl.Snapshot().Recording {
		t.Fatalf("auto-resume fired early")
	}
	h.clock.Advance(time.Millisecond)
	snap = h.ctrl.Snapshot()
	if !snap.Recording || snap.State != StateListening || snap.LastResume != ResumeStarted {
		t.Fatalf("expected auto-resume: %+v", snap)
	}
	if starts, _, _ := h.capture.counts(); starts != 2 {
		t.Fatalf("expected a second capture start, got %d", starts)
	}
}

func TestAutoResumeGuards(t *testing.T) {
	t.Run("no speech detected", func(t *testing.T) {
		h := newHarness(t)
		h.startVoice(t)
		if _, err := h.ctrl.SendText(context.Background(), "typed while listening"); err != nil {
			t.Fatalf("SendText: %v", err)
		}
		waitFor(t, "reply playback", func() bool { return h.ctrl.Snapshot().PendingTimers == 1 })
		h.clock.Advance(time.Second)
		if got := h.ctrl.Snapshot().LastResume; got != ResumeNoSpeechYet {
			t.Fatalf("got %q want %q", got, ResumeNoSpeechYet)
		}
		if starts, _, _ := h.capture.counts(); starts != 1 {
			t.Fatalf("capture must not restart")
		}
	})

	t.Run("manual stop wins over in-flight reply", func(t *testing.T) {
		h := newHarness(t)
		gate := make(chan struct{})
		h.responder.gate = gate
		h.startVoice(t)
		h.ctrl.OnFinal("hello there")
		_ = h.ctrl.StopListening()
		close(gate)
		waitFor(t, "reply playback", func() bool { return h.ctrl.Snapshot().PendingTimers == 1 })
		h.clock.Advance(time.Second)
		if got := h.ctrl.Snapshot().LastResume; got != ResumeManualStop {
			t.Fatalf("got %q want %q", got, ResumeManualStop)
		}
		if starts, _, _ := h.capture.counts(); starts != 1 {
			t.Fatalf("manual stop was overridden")
		}
	})

	t.Run("session window elapsed", func(t *testing.T) {
		h := newHarness(t)
		gate := make(chan struct{})
		h.responder.gate = gate
		h.startVoice(t)
		h.ctrl.OnFinal("a long question")
		h.clock.Advance(31 * time.Second)
		if h.ctrl.Snapshot().SilenceStage != 0 {
			t.Fatalf("no prompts while a reply is pending")
		}
		close(gate)
		waitFor(t, "reply playback", func() bool {
			s := h.ctrl.Snapshot()
			return s.State == StateIdle && s.PendingTimers == 1
		})
		h.clock.Advance(time.Second)
		if got := h.ctrl.Snapshot().LastResume; got != ResumeWindowElapsed {
			t.Fatalf("got %q want %q", got, ResumeWindowElapsed)
		}
	})

	t.Run("mode switched during delay", func(t *testing.T) {
		h := newHarness(t)
		h.startVoice(t)
		h.ctrl.OnFinal("switching soon")
		waitFor(t, "reply playback", func() bool {
			s := h.ctrl.Snapshot()
			return s.State == StateIdle && s.PendingTimers == 1
		})
		_ = h.ctrl.EnterTextMode()
		if h.clock.Pending() != 0 {
			t.Fatalf("mode switch must cancel the resume timer")
		}
		h.clock.Advance(time.Second)
		if h.ctrl.Snapshot().Recording {
			t.Fatalf("capture restarted after switching to text")
		}
	})
}

func TestCaptureErrors(t *testing.T) {
	h := newHarness(t)
	h.startVoice(t)

	h.ctrl.OnCaptureError("no-speech", nil)
	if !h.ctrl.Snapshot().Recording {
		t.Fatalf("no-speech must not stop listening")
	}

	h.ctrl.OnCaptureError("not-allowed", errors.New("permission denied"))
	snap := h.ctrl.Snapshot()
	if snap.Recording || snap.KeepRecording || h.clock.Pending() != 0 {
		t.Fatalf("hard error should end listening: %+v", snap)
	}
	if msg := lastMessage(snap); msg.Role != types.RoleSystem || !strings.Contains(msg.Text, "not-allowed") {
		t.Fatalf("expected a notice, got %+v", msg)
	}

	h.capture.startErr = errors.New("device busy")
	if err := h.ctrl.StartListening(); err == nil {
		t.Fatalf("expected start error")
	}
	if h.ctrl.Snapshot().KeepRecording {
		t.Fatalf("failed start must not keep recording")
	}
}

func TestTurnFailureIsSpokenAndKeptOutOfHistory(t *testing.T) {
	h := newHarness(t)
	h.responder.err = errors.New("upstream down")
	h.startVoice(t)
	h.ctrl.OnFinal("hello")

	waitFor(t, "error reply", func() bool {
		s := h.ctrl.Snapshot()
		return len(s.Transcript) == 3 && s.State == StateIdle
	})
	msg := lastMessage(h.ctrl.Snapshot())
	if msg.Text != ErrorReply || msg.Role != types.RoleAssistant {
		t.Fatalf("unexpected error message %+v", msg)
	}
	waitFor(t, "error playback", func() bool {
		played := h.playback.texts()
		return len(played) > 0 && played[len(played)-1] == ErrorReply
	})

	h.responder.mu.Lock()
	h.responder.err = nil
	h.responder.mu.Unlock()
	h.clock.Advance(time.Second)
	h.ctrl.OnFinal("second try")
	waitFor(t, "second call", func() bool { return len(h.responder.callList()) == 2 })
	history := h.responder.callList()[1].history
	if len(history) != 1 || history[0].Parts[0].Text != "hello" {
		t.Fatalf("scripted and error lines must stay out of history: %+v", history)
	}
}

func TestPlaybackFailureUsesFallback(t *testing.T) {
	h := newHarness(t)
	h.playback.err = errors.New("tts quota")
	if err := h.ctrl.EnterVoiceMode(); err != nil {
		t.Fatalf("EnterVoiceMode: %v", err)
	}
	waitFor(t, "fallback speech", func() bool { return len(h.fallback.texts()) == 1 })
	waitFor(t, "idle", func() bool { return h.ctrl.Snapshot().State == StateIdle })

	h.fallback.err = errors.New("no synthesizer")
	_ = h.ctrl.StartListening()
	h.ctrl.OnFinal("still works")
	waitFor(t, "reply despite silent output", func() bool {
		s := h.ctrl.Snapshot()
		return s.State == StateIdle && lastMessage(s).Role == types.RoleAssistant
	})
}

func TestStartListeningRequiresVoiceMode(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.StartListening(); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	h.startVoice(t)
	if err := h.ctrl.StartListening(); err != nil {
		t.Fatalf("second start should be a no-op: %v", err)
	}
	if starts, _, _ := h.capture.counts(); starts != 1 {
		t.Fatalf("capture acquired twice")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	h := newHarness(t)
	h.startVoice(t)
	h.ctrl.OnSpeechStart()

	h.ctrl.Close()
	snap := h.ctrl.Snapshot()
	if !snap.Closed || snap.Recording || snap.PendingTimers != 0 || h.clock.Pending() != 0 {
		t.Fatalf("close left work behind: %+v", snap)
	}
	h.clock.Advance(time.Minute)
	if n := len(h.ctrl.Snapshot().Transcript); n != 1 {
		t.Fatalf("no callback may act after close, transcript has %d messages", n)
	}
	if _, err := h.ctrl.SendText(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := h.ctrl.EnterVoiceMode(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	h.ctrl.Close()
}

type recordingObserver struct {
	mu       sync.Mutex
	messages []string
	states   []ListeningState
}

func (o *recordingObserver) MessageAppended(_ string, msg types.ChatMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, string(msg.Role))
}

func (o *recordingObserver) StateChanged(_ string, snap Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, snap.State)
}

func TestObserverSeesTranscriptAndStates(t *testing.T) {
	obs := &recordingObserver{}
	ctrl := NewController(logger.NewNop(), Config{UserID: "linh"}, Deps{
		Responder: &fakeResponder{},
		Clock:     newFakeClock(morning),
		Observer:  obs,
	})
	defer ctrl.Close()
	if _, err := ctrl.SendText(context.Background(), "hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if strings.Join(obs.messages, ",") != "user,assistant" {
		t.Fatalf("unexpected messages %v", obs.messages)
	}
	seen := map[ListeningState]bool{}
	for _, s := range obs.states {
		seen[s] = true
	}
	keys := make([]string, 0, len(seen))
	for s := range seen {
		keys = append(keys, string(s))
	}
	sort.Strings(keys)
	if strings.Join(keys, ",") != "awaitingReply,idle" {
		t.Fatalf("unexpected states %v", keys)
	}
}
