package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ielts-tutor-backend/internal/http/response"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/notes"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

var errEmptyPatch = errors.New("title or body is required")

type NotesHandler struct {
	log *logger.Logger
	svc notes.Service
	now func() time.Time
}

func NewNotesHandler(log *logger.Logger, svc notes.Service) *NotesHandler {
	return &NotesHandler{log: log.With("handler", "NotesHandler"), svc: svc, now: time.Now}
}

// GET /api/lessons
func (h *NotesHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lessons, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lessons": lessons})
}

// POST /api/lessons
func (h *NotesHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	lesson, err := h.svc.CreateLesson(c.Request.Context(), userID, req.Title)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, lesson)
}

// PATCH /api/lessons/:id accepts title and/or body.
func (h *NotesHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Title == nil && req.Body == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errEmptyPatch)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if req.Title != nil {
		lesson, err := h.svc.RenameLesson(ctx, userID, id, *req.Title)
		if err != nil {
			response.RespondAPIError(c, err)
			return
		}
		if req.Body == nil {
			response.RespondOK(c, lesson)
			return
		}
	}
	lesson, err := h.svc.UpdateBody(ctx, userID, id, *req.Body)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, lesson)
}

// DELETE /api/lessons/:id
func (h *NotesHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteLesson(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondDeleted(c)
}

// POST /api/lessons/:id/tasks; deadline is epoch milliseconds.
func (h *NotesHandler) AddTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		Text     string `json:"text"`
		Deadline *int64 `json:"deadline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var deadline *time.Time
	if req.Deadline != nil {
		d := time.UnixMilli(*req.Deadline)
		deadline = &d
	}
	lesson, err := h.svc.AddTask(c.Request.Context(), userID, c.Param("id"), req.Text, deadline)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, lesson)
}

// POST /api/lessons/:id/tasks/:taskId/toggle
func (h *NotesHandler) ToggleTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lesson, err := h.svc.ToggleTask(c.Request.Context(), userID, c.Param("id"), c.Param("taskId"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, lesson)
}

// DELETE /api/lessons/:id/tasks/:taskId
func (h *NotesHandler) DeleteTask(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	lesson, err := h.svc.DeleteTask(c.Request.Context(), userID, c.Param("id"), c.Param("taskId"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, lesson)
}

// GET /api/lessons/deadlines
func (h *NotesHandler) Deadlines(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	deadlines, err := h.svc.UpcomingDeadlines(c.Request.Context(), userID, h.now())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deadlines": deadlines})
}

// POST /api/lessons/summary; an empty lessonId summarizes the whole notebook.
func (h *NotesHandler) Summarize(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		LessonID string `json:"lessonId"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	summary, err := h.svc.Summarize(c.Request.Context(), userID, req.LessonID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summary": summary})
}

// GET /api/notes
func (h *NotesHandler) GetGlobal(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	n, err := h.svc.GetGlobalNotes(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, n)
}

// PUT /api/notes
func (h *NotesHandler) SaveGlobal(c *gin.Context) {
	userID, ok := currentUserID(c)
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
	n, err := h.svc.SaveGlobalNotes(c.Request.Context(), userID, req.Text)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, n)
}
