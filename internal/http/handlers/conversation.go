package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ielts-tutor-backend/internal/http/response"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/conversation"
	pkgerrors "github.com/yungbote/ielts-tutor-backend/internal/pkg/errors"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/ctxutil"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/gcp"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
	"github.com/yungbote/ielts-tutor-backend/internal/realtime"
)

const maxAudioUpload = 10 << 20

var (
	errUnknownMode       = pkgerrors.Invalid("mode must be voice or text")
	errUnknownEvent      = pkgerrors.Invalid("unknown capture event")
	errUnknownPlayback   = pkgerrors.NotFound("playback not pending")
	errSpeechUnavailable = pkgerrors.Unsupported("server-side transcription is not configured")
	errEmptyAudio        = pkgerrors.Invalid("audio is required")
)

// Transcriber turns an uploaded clip into text.
type Transcriber interface {
	TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg gcp.SpeechConfig) (*gcp.SpeechResult, error)
}

type ConversationHandlerDeps struct {
	Log      *logger.Logger
	Registry *conversation.Registry
	Sessions *realtime.VoiceSessions
	Hub      *realtime.SSEHub
	// Build supplies the session's capabilities; it must include Sessions.Deps for the browser bridge.
	Build  func(sessionID string) conversation.Deps
	Speech Transcriber
}

type ConversationHandler struct {
	log      *logger.Logger
	registry *conversation.Registry
	sessions *realtime.VoiceSessions
	hub      *realtime.SSEHub
	build    func(sessionID string) conversation.Deps
	speech   Transcriber
}

func NewConversationHandlerWithDeps(deps ConversationHandlerDeps) *ConversationHandler {
	return &ConversationHandler{
		log:      deps.Log.With("handler", "ConversationHandler"),
		registry: deps.Registry,
		sessions: deps.Sessions,
		hub:      deps.Hub,
		build:    deps.Build,
		speech:   deps.Speech,
	}
}

func (h *ConversationHandler) controller(c *gin.Context) (*conversation.Controller, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}
	ctrl, err := h.registry.Get(c.Param("id"), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return nil, false
	}
	return ctrl, true
}

// POST /api/conversations
// The optional body carries the learner's zone as timeZone (IANA) or utcOffsetMinutes (east of UTC).
func (h *ConversationHandler) Open(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == "" {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", pkgerrors.ErrUnauthorized)
		return
	}
	var req struct {
		TimeZone         string `json:"timeZone"`
		UTCOffsetMinutes *int   `json:"utcOffsetMinutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	loc, err := conversation.LearnerLocation(req.TimeZone, req.UTCOffsetMinutes)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	name := rd.Name
	if name == "" {
		name = rd.UserID
	}
	ctrl := h.registry.Open(conversation.OpenRequest{UserID: rd.UserID, UserName: name, Location: loc}, h.build)
	response.RespondCreated(c, gin.H{"id": ctrl.ID(), "session": ctrl.Snapshot()})
}

// GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	response.RespondOK(c, ctrl.Snapshot())
}

// POST /api/conversations/:id/messages
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	reply, err := ctrl.SendText(c.Request.Context(), req.Text)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reply": reply, "session": ctrl.Snapshot()})
}

// POST /api/conversations/:id/mode
func (h *ConversationHandler) SetMode(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var err error
	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "voice":
		err = ctrl.EnterVoiceMode()
	case "text":
		err = ctrl.EnterTextMode()
	default:
		err = errUnknownMode
	}
	h.respondSnapshot(c, ctrl, err)
}

// POST /api/conversations/:id/listen
func (h *ConversationHandler) Listen(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respondSnapshot(c, ctrl, ctrl.StartListening())
}

// POST /api/conversations/:id/stop
func (h *ConversationHandler) Stop(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respondSnapshot(c, ctrl, ctrl.StopListening())
}

func (h *ConversationHandler) respondSnapshot(c *gin.Context, ctrl *conversation.Controller, err error) {
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, ctrl.Snapshot())
}

// POST /api/conversations/:id/events relays recognizer callbacks from the browser.
func (h *ConversationHandler) CaptureEvent(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	sink := ctrl.Sink()
	switch req.Type {
	case "speechstart":
		sink.OnSpeechStart()
	case "partial":
		sink.OnPartial(req.Text)
	case "final":
		sink.OnFinal(req.Text)
	case "nospeech":
		sink.OnNoSpeech()
	case "error":
		msg := req.Message
		if msg == "" {
			msg = req.Kind
		}
		sink.OnCaptureError(req.Kind, errors.New(msg))
	default:
		response.RespondAPIError(c, errUnknownEvent)
		return
	}
	response.RespondOK(c, ctrl.Snapshot())
}

// POST /api/conversations/:id/playback reports that the browser finished an utterance.
func (h *ConversationHandler) PlaybackDone(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req struct {
		PlaybackID string `json:"playbackId"`
		Error      string `json:"error"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if h.sessions == nil {
		response.RespondAPIError(c, errUnknownPlayback)
		return
	}
	bridge, found := h.sessions.Lookup(ctrl.ID())
	if !found || !bridge.Complete(req.PlaybackID, req.Error) {
		response.RespondAPIError(c, errUnknownPlayback)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/conversations/:id/audio transcribes a recorded clip and feeds it to the controller
// as one final result.
func (h *ConversationHandler) UploadAudio(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if h.speech == nil {
		response.RespondAPIError(c, errSpeechUnavailable)
		return
	}
	data, mimeType, err := readAudio(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	result, err := h.speech.TranscribeAudioBytes(c.Request.Context(), data, mimeType, gcp.DefaultSpeechConfig())
	sink := ctrl.Sink()
	if err != nil {
		h.log.Warn("transcription failed", "session_id", ctrl.ID(), "error", err)
		sink.OnCaptureError("network", err)
		response.RespondAPIError(c, pkgerrors.ErrUpstream)
		return
	}
	text := ""
	if result != nil {
		text = strings.TrimSpace(result.PrimaryText)
	}
	if text == "" {
		sink.OnNoSpeech()
	} else {
		sink.OnSpeechStart()
		sink.OnFinal(text)
	}
	response.RespondOK(c, gin.H{"transcript": text, "session": ctrl.Snapshot()})
}

func readAudio(c *gin.Context) ([]byte, string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("audio")
		if err != nil {
			return nil, "", errEmptyAudio
		}
		if fh.Size > maxAudioUpload {
			return nil, "", pkgerrors.Invalid("audio clip is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		if len(data) == 0 {
			return nil, "", errEmptyAudio
		}
		return data, fh.Header.Get("Content-Type"), nil
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAudioUpload+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxAudioUpload {
		return nil, "", pkgerrors.Invalid("audio clip is too large")
	}
	if len(data) == 0 {
		return nil, "", errEmptyAudio
	}
	return data, c.ContentType(), nil
}

// GET /api/conversations/:id/stream
func (h *ConversationHandler) Stream(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	detach := h.registry.Attach(ctrl.ID())
	defer detach()
	client := h.hub.NewSSEClient(ctrl.UserID())
	h.hub.AddChannel(client, realtime.VoiceChannel(ctrl.ID()))
	h.log.Debug("conversation stream open", "session_id", ctrl.ID(), "client_id", client.ID)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}

// DELETE /api/conversations/:id
func (h *ConversationHandler) Close(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.registry.Close(id, userID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if h.sessions != nil {
		h.sessions.Forget(id)
	}
	response.RespondDeleted(c)
}
