package conversation

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/aigateway"
	"github.com/yungbote/ielts-tutor-backend/internal/observability"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

type ListeningState string

const (
	StateIdle          ListeningState = "idle"
	StateListening     ListeningState = "listening"
	StateAwaitingReply ListeningState = "awaitingReply"
	StateSpeaking      ListeningState = "speaking"
)

// Reasons an auto-resume was skipped, in the order the guards are checked.
const (
	ResumeStarted        = "started"
	ResumeClosed         = "closed"
	ResumeWindowElapsed  = "session_window_elapsed"
	ResumeNotVoice       = "not_voice_mode"
	ResumeAlreadyActive  = "already_recording"
	ResumeManualStop     = "manual_stop"
	ResumeNoSpeechYet    = "no_speech_detected"
	ResumeCaptureFailure = "capture_failed"
)

var (
	ErrClosed       = pkgerrors.NotFound("conversation closed")
	errNotVoiceMode = pkgerrors.Invalid("switch to voice mode before listening")
)

type Timings struct {
	StageInterval   time.Duration `yaml:"stage_interval"`
	ClosingGrace    time.Duration `yaml:"closing_grace"`
	SessionWindow   time.Duration `yaml:"session_window"`
	AutoResumeDelay time.Duration `yaml:"auto_resume_delay"`
	// IdleTimeout closes a session with no open stream and no requests for this long.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

func DefaultTimings() Timings {
	return Timings{
		StageInterval:   10 * time.Second,
		ClosingGrace:    3 * time.Second,
		SessionWindow:   30 * time.Second,
		AutoResumeDelay: 800 * time.Millisecond,
		IdleTimeout:     30 * time.Minute,
	}
}

func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.StageInterval <= 0 {
		t.StageInterval = d.StageInterval
	}
	if t.ClosingGrace <= 0 {
		t.ClosingGrace = d.ClosingGrace
	}
	if t.SessionWindow <= 0 {
		t.SessionWindow = d.SessionWindow
	}
	if t.AutoResumeDelay <= 0 {
		t.AutoResumeDelay = d.AutoResumeDelay
	}
	if t.IdleTimeout <= 0 {
		t.IdleTimeout = d.IdleTimeout
	}
	return t
}

type Config struct {
	SessionID    string
	UserID       string
	UserName     string
	Timings      Timings
	HistoryLimit int
	Location     *time.Location
}

// Deps are the injected capabilities. Capture and Playback may be nil for text-only sessions.
type Deps struct {
	Responder  Responder
	Capture    SpeechCapture
	Playback   AudioPlayback
	Fallback   FallbackSpeaker
	Clock      Clock
	TurnLogger TurnLogger
	Observer   Observer
	// Pick chooses the welcome template; defaults to math/rand.
	Pick func(n int) int
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	SessionID          string              `json:"sessionId"`
	UserID             string              `json:"userId"`
	Mode               Mode                `json:"mode"`
	State              ListeningState      `json:"listeningState"`
	SilenceStage       int                 `json:"silenceStage"`
	HasDetectedSpeech  bool                `json:"hasDetectedSpeechThisSession"`
	WelcomeDelivered   bool                `json:"welcomeDelivered"`
	KeepRecording      bool                `json:"keepRecording"`
	Recording          bool                `json:"recording"`
	Partial            string              `json:"partial"`
	SessionStartedAt   int64               `json:"sessionStartedAt"`
	LastUserActivityAt int64               `json:"lastUserActivityAt"`
	PendingTimers      int                 `json:"pendingTimers"`
	LastResume         string              `json:"lastResume,omitempty"`
	Closed             bool                `json:"closed"`
	Transcript         []types.ChatMessage `json:"transcript,omitempty"`
}

// Controller runs one conversation. Every state change happens under mu; network calls and
// playback run on goroutines tracked by wg and re-enter through the lock.
type Controller struct {
	log  *logger.Logger
	cfg  Config
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                 sync.Mutex
	closed             bool
	transcript         []types.ChatMessage
	mode               Mode
	state              ListeningState
	sessionStartedAt   time.Time
	lastUserActivityAt time.Time
	silenceStage       int
	hasDetectedSpeech  bool
	welcomeDelivered   bool
	keepRecording      bool
	recording          bool
	partial            string
	pendingTurns       int
	lastResume         string

	silenceTimer Timer
	silenceGen   uint64
	resumeTimer  Timer
	resumeGen    uint64

	playCancel context.CancelFunc
	playSeq    uint64
}

func NewController(log *logger.Logger, cfg Config, deps Deps) *Controller {
	cfg.Timings = cfg.Timings.withDefaults()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = aigateway.DefaultHistoryLimit
	}
	// Without a zone from the client the greeting falls back to the server's zone.
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if deps.Clock == nil {
		deps.Clock = RealClock()
	}
	if deps.Pick == nil {
		deps.Pick = rand.Intn
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := deps.Clock.Now()
	c := &Controller{
		log:                log.With("service", "ConversationController", "session_id", cfg.SessionID),
		cfg:                cfg,
		deps:               deps,
		ctx:                ctx,
		cancel:             cancel,
		transcript:         []types.ChatMessage{},
		mode:               ModeText,
		state:              StateIdle,
		sessionStartedAt:   now,
		lastUserActivityAt: now,
	}
	observability.Current().VoiceSessionOpened()
	return c
}

func (c *Controller) ID() string     { return c.cfg.SessionID }
func (c *Controller) UserID() string { return c.cfg.UserID }

// Sink exposes the controller as the recognition event receiver.
func (c *Controller) Sink() CaptureSink { return c }

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snapshotLocked()
	snap.Transcript = append([]types.ChatMessage(nil), c.transcript...)
	return snap
}

func (c *Controller) snapshotLocked() Snapshot {
	pending := 0
	if c.silenceTimer != nil {
		pending++
	}
	if c.resumeTimer != nil {
		pending++
	}
	return Snapshot{
		SessionID:          c.cfg.SessionID,
		UserID:             c.cfg.UserID,
		Mode:               c.mode,
		State:              c.state,
		SilenceStage:       c.silenceStage,
		HasDetectedSpeech:  c.hasDetectedSpeech,
		WelcomeDelivered:   c.welcomeDelivered,
		KeepRecording:      c.keepRecording,
		Recording:          c.recording,
		Partial:            c.partial,
		SessionStartedAt:   c.sessionStartedAt.UnixMilli(),
		LastUserActivityAt: c.lastUserActivityAt.UnixMilli(),
		PendingTimers:      pending,
		LastResume:         c.lastResume,
		Closed:             c.closed,
	}
}

func (c *Controller) setStateLocked(s ListeningState) {
	if c.state == s {
		return
	}
	c.state = s
	c.notifyStateLocked()
}

func (c *Controller) notifyStateLocked() {
	if c.deps.Observer != nil {
		c.deps.Observer.StateChanged(c.cfg.SessionID, c.snapshotLocked())
	}
}

func (c *Controller) appendLocked(role types.ChatRole, kind types.MessageKind, text string) types.ChatMessage {
	msg := types.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: c.deps.Clock.Now().UnixMilli(),
		Kind:      kind,
	}
	c.transcript = append(c.transcript, msg)
	if c.deps.Observer != nil {
		c.deps.Observer.MessageAppended(c.cfg.SessionID, msg)
	}
	return msg
}

// ---- text and turns ----

// SendText submits a typed message and waits for the reply.
func (c *Controller) SendText(ctx context.Context, text string) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ChatMessage{}, pkgerrors.Invalid("Message is required")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ChatMessage{}, ErrClosed
	}
	c.lastUserActivityAt = c.deps.Clock.Now()
	history, variant := c.beginTurnLocked(text)
	c.mu.Unlock()

	return c.runTurn(ctx, text, history, variant)
}

// beginTurnLocked appends the user message and returns the history that precedes it.
func (c *Controller) beginTurnLocked(text string) ([]types.ChatTurn, aigateway.Variant) {
	history := aigateway.TrimHistory(c.transcript, c.cfg.HistoryLimit)
	c.appendLocked(types.RoleUser, "", text)
	c.pendingTurns++
	if c.state != StateSpeaking {
		c.setStateLocked(StateAwaitingReply)
	}
	variant := aigateway.VariantText
	if c.mode == ModeVoice {
		variant = aigateway.VariantSpeaking
	}
	return history, variant
}

func (c *Controller) runTurn(ctx context.Context, text string, history []types.ChatTurn, variant aigateway.Variant) (types.ChatMessage, error) {
	reply, err := c.deps.Responder.ChatTurn(ctx, history, text, variant)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = fmt.Errorf("%w: empty reply", pkgerrors.ErrUpstream)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return types.ChatMessage{}, ErrClosed
	}
	c.pendingTurns--
	if err != nil {
		c.log.Warn("chat turn failed", "error", err)
		observability.Current().IncVoiceEvent("turn_error")
		msg := c.deliverReplyLocked(ErrorReply, types.KindNotice)
		return msg, err
	}
	msg := c.deliverReplyLocked(reply, "")
	c.logTurnLocked(text, reply)
	return msg, nil
}

// deliverReplyLocked appends the assistant line and, in voice mode, speaks it with the
// microphone released. Auto-resume is considered once playback ends.
func (c *Controller) deliverReplyLocked(text string, kind types.MessageKind) types.ChatMessage {
	msg := c.appendLocked(types.RoleAssistant, kind, text)
	if c.mode != ModeVoice {
		if c.pendingTurns == 0 {
			c.setStateLocked(StateIdle)
		}
		return msg
	}
	c.stopSilenceLocked()
	c.stopCaptureLocked()
	c.partial = ""
	c.setStateLocked(StateSpeaking)
	c.speakLocked(text, func() {
		if c.state == StateSpeaking {
			c.settleIdleLocked()
			c.notifyStateLocked()
		}
		c.scheduleAutoResumeLocked()
	})
	return msg
}

func (c *Controller) logTurnLocked(userText, reply string) {
	if c.deps.TurnLogger == nil {
		return
	}
	userID := c.cfg.UserID
	ctx := context.WithoutCancel(c.ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.deps.TurnLogger.LogTurn(ctx, userID, userText, reply); err != nil {
			c.log.Warn("chat log write failed", "error", err)
		}
	}()
}

// ---- modes ----

// EnterVoiceMode switches to voice and speaks the welcome line the first time only.
func (c *Controller) EnterVoiceMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.mode == ModeVoice {
		return nil
	}
	c.mode = ModeVoice
	observability.Current().IncVoiceEvent("voice_mode")
	if !c.welcomeDelivered {
		c.welcomeDelivered = true
		line := WelcomeLine(c.cfg.UserName, c.deps.Clock.Now().In(c.cfg.Location), c.deps.Pick)
		c.appendLocked(types.RoleAssistant, types.KindWelcome, line)
		c.state = StateSpeaking
		c.speakLocked(line, func() {
			if c.state == StateSpeaking {
				c.settleIdleLocked()
				c.notifyStateLocked()
			}
		})
	}
	c.notifyStateLocked()
	return nil
}

// EnterTextMode stops listening and playback. The transcript is kept.
func (c *Controller) EnterTextMode() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.haltVoiceLocked()
	c.cancelPlaybackLocked()
	c.mode = ModeText
	c.settleIdleLocked()
	c.notifyStateLocked()
	return nil
}

// haltVoiceLocked disables auto-resume, clears both timers and releases the microphone.
func (c *Controller) haltVoiceLocked() {
	c.keepRecording = false
	c.stopSilenceLocked()
	c.stopResumeLocked()
	c.silenceStage = 0
	c.partial = ""
	c.stopCaptureLocked()
}

func (c *Controller) settleIdleLocked() {
	if c.pendingTurns > 0 {
		c.state = StateAwaitingReply
		return
	}
	c.state = StateIdle
}

// ---- listening ----

// StartListening opens the microphone on user request. It is a no-op while recording.
func (c *Controller) StartListening() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.mode != ModeVoice {
		return errNotVoiceMode
	}
	if c.recording {
		return nil
	}
	c.keepRecording = true
	c.lastUserActivityAt = c.deps.Clock.Now()
	c.cancelPlaybackLocked()
	if err := c.startCaptureLocked(); err != nil {
		c.keepRecording = false
		c.settleIdleLocked()
		c.notifyStateLocked()
		return err
	}
	return nil
}

// StopListening is authoritative: nothing scheduled before it can reopen the microphone.
func (c *Controller) StopListening() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.haltVoiceLocked()
	if c.state == StateListening {
		c.settleIdleLocked()
	}
	observability.Current().IncVoiceEvent("manual_stop")
	c.notifyStateLocked()
	return nil
}

func (c *Controller) startCaptureLocked() error {
	if c.deps.Capture == nil {
		return fmt.Errorf("%w: no speech capture configured", pkgerrors.ErrNotSupported)
	}
	if err := c.deps.Capture.Start(c); err != nil {
		c.log.Warn("speech capture failed to start", "error", err)
		return err
	}
	c.recording = true
	c.silenceStage = 0
	c.partial = ""
	if c.pendingTurns > 0 {
		c.state = StateAwaitingReply
	} else {
		c.state = StateListening
	}
	c.armSilenceLocked()
	c.notifyStateLocked()
	return nil
}

func (c *Controller) stopCaptureLocked() {
	if !c.recording {
		return
	}
	c.recording = false
	if c.deps.Capture == nil {
		return
	}
	if err := c.deps.Capture.Stop(); err != nil {
		c.log.Warn("speech capture stop failed", "error", err)
	}
}

// ---- recognition events ----

func (c *Controller) OnSpeechStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.recording {
		return
	}
	c.speechDetectedLocked()
	c.notifyStateLocked()
}

func (c *Controller) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.recording {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.partial = text
	c.speechDetectedLocked()
	c.notifyStateLocked()
}

// OnFinal submits the segment right away; capture keeps running.
func (c *Controller) OnFinal(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.recording {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.partial = ""
	c.speechDetectedLocked()
	observability.Current().IncVoiceEvent("final_transcript")
	history, variant := c.beginTurnLocked(text)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_, _ = c.runTurn(c.ctx, text, history, variant)
	}()
}

// OnNoSpeech is informational; listening continues.
func (c *Controller) OnNoSpeech() {
	c.log.Debug("recognizer reported no speech")
}

// OnCaptureError ends the listening attempt without retry.
func (c *Controller) OnCaptureError(kind string, err error) {
	if kind == "no-speech" {
		c.OnNoSpeech()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.recording {
		return
	}
	c.log.Warn("speech capture error", "kind", kind, "error", err)
	observability.Current().IncVoiceEvent("capture_error")
	c.haltVoiceLocked()
	if c.state == StateListening {
		c.settleIdleLocked()
	}
	c.appendLocked(types.RoleSystem, types.KindNotice, fmt.Sprintf(CaptureStopNotice, kind))
	c.notifyStateLocked()
}

// speechDetectedLocked resets escalation relative to now.
func (c *Controller) speechDetectedLocked() {
	c.hasDetectedSpeech = true
	c.lastUserActivityAt = c.deps.Clock.Now()
	c.silenceStage = 0
	c.armSilenceLocked()
}

// ---- silence escalation ----

// armSilenceLocked is the only place the silence timer is scheduled.
func (c *Controller) armSilenceLocked() {
	c.stopSilenceLocked()
	delay := c.cfg.Timings.StageInterval
	if c.silenceStage >= 3 {
		delay = c.cfg.Timings.ClosingGrace
	}
	gen := c.silenceGen
	c.silenceTimer = c.deps.Clock.AfterFunc(delay, func() { c.onSilence(gen) })
}

func (c *Controller) stopSilenceLocked() {
	c.silenceGen++
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
		c.silenceTimer = nil
	}
}

func (c *Controller) onSilence(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.silenceGen {
		return
	}
	c.silenceTimer = nil
	if !c.recording || c.mode != ModeVoice {
		return
	}
	// A reply is on its way; hold the current stage.
	if c.pendingTurns > 0 {
		c.armSilenceLocked()
		return
	}
	switch c.silenceStage {
	case 0, 1:
		c.silenceStage++
		prompt := SilencePrompt(c.silenceStage)
		observability.Current().IncVoiceEvent(fmt.Sprintf("silence_stage_%d", c.silenceStage))
		c.appendLocked(types.RoleAssistant, types.KindPrompt, prompt)
		c.speakLocked(prompt, nil)
		c.armSilenceLocked()
	case 2:
		c.silenceStage = 3
		observability.Current().IncVoiceEvent("silence_stage_3")
		c.appendLocked(types.RoleAssistant, types.KindNotice, ClosingNotice)
		c.speakLocked(ClosingNotice, nil)
		c.armSilenceLocked()
	default:
		c.forceStopLocked()
	}
	c.notifyStateLocked()
}

// forceStopLocked ends voice mode after the closing grace. The closing notice may finish playing.
func (c *Controller) forceStopLocked() {
	observability.Current().IncVoiceEvent("forced_stop")
	c.haltVoiceLocked()
	c.mode = ModeText
	c.settleIdleLocked()
	c.appendLocked(types.RoleSystem, types.KindNotice, ForcedStopNotice)
}

// ---- auto-resume ----

func (c *Controller) scheduleAutoResumeLocked() {
	c.stopResumeLocked()
	gen := c.resumeGen
	c.resumeTimer = c.deps.Clock.AfterFunc(c.cfg.Timings.AutoResumeDelay, func() { c.onAutoResume(gen) })
}

func (c *Controller) stopResumeLocked() {
	c.resumeGen++
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
}

func (c *Controller) onAutoResume(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.resumeGen {
		return
	}
	c.resumeTimer = nil
	reason := c.resumeBlockerLocked()
	if reason == "" {
		if err := c.startCaptureLocked(); err != nil {
			reason = ResumeCaptureFailure
			c.keepRecording = false
		} else {
			reason = ResumeStarted
		}
	}
	c.lastResume = reason
	observability.Current().IncVoiceEvent("auto_resume_" + reason)
	if reason != ResumeStarted && reason != ResumeClosed {
		c.notifyStateLocked()
	}
}

// resumeBlockerLocked returns the first failing guard, or "" when listening may resume.
// The elapsed-time check runs before the mode and recording checks.
func (c *Controller) resumeBlockerLocked() string {
	switch {
	case c.closed:
		return ResumeClosed
	case c.deps.Clock.Now().Sub(c.lastUserActivityAt) >= c.cfg.Timings.SessionWindow:
		return ResumeWindowElapsed
	case c.mode != ModeVoice:
		return ResumeNotVoice
	case c.recording:
		return ResumeAlreadyActive
	case !c.keepRecording:
		return ResumeManualStop
	case !c.hasDetectedSpeech:
		return ResumeNoSpeechYet
	}
	return ""
}

// ---- playback ----

// speakLocked replaces any in-flight utterance. after runs under the lock once playback ends,
// unless a newer utterance or Close superseded it.
func (c *Controller) speakLocked(text string, after func()) {
	c.cancelPlaybackLocked()
	seq := c.playSeq
	ctx, cancel := context.WithCancel(c.ctx)
	c.playCancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.play(ctx, text)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || seq != c.playSeq {
			return
		}
		c.playCancel = nil
		if after != nil {
			after()
		}
	}()
}

func (c *Controller) cancelPlaybackLocked() {
	c.playSeq++
	if c.playCancel != nil {
		c.playCancel()
		c.playCancel = nil
	}
}

// play tries the primary playback, then the fallback speaker. Failures are logged only.
func (c *Controller) play(ctx context.Context, text string) {
	if c.deps.Playback != nil {
		err := c.deps.Playback.Play(ctx, text)
		if err == nil || ctx.Err() != nil {
			return
		}
		c.log.Warn("audio playback failed, using fallback speaker", "error", err)
		observability.Current().IncVoiceEvent("playback_fallback")
	}
	if c.deps.Fallback != nil {
		err := c.deps.Fallback.Speak(ctx, text)
		if err == nil || ctx.Err() != nil {
			return
		}
		c.log.Warn("fallback speech failed", "error", err)
	}
	c.log.Info("no speech output available, continuing silently")
}

// ---- teardown ----

// Close cancels every timer, releases the microphone, stops playback and waits for
// in-flight work. No callback acts after Close returns.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.haltVoiceLocked()
	c.cancelPlaybackLocked()
	c.cancel()
	c.notifyStateLocked()
	c.mu.Unlock()

	c.wg.Wait()
	observability.Current().VoiceSessionClosed()
}
