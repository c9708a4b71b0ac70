package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/ielts-tutor-backend/internal/domain"
	"github.com/yungbote/ielts-tutor-backend/internal/http/response"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/vocab"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

var (
	errExampleUnavailable = errors.New("Could not generate example.")
	errNothingToUpdate    = errors.New("nothing to update")
)

type VocabHandler struct {
	log *logger.Logger
	svc vocab.Service
}

func NewVocabHandler(log *logger.Logger, svc vocab.Service) *VocabHandler {
	return &VocabHandler{log: log.With("handler", "VocabHandler"), svc: svc}
}

// GET /api/vocab
func (h *VocabHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	items, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": items})
}

// POST /api/vocab
func (h *VocabHandler) Add(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		Words string `json:"words"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.AddWords(c.Request.Context(), userID, req.Words)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// DELETE /api/vocab/:id
func (h *VocabHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteWord(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondDeleted(c)
}

// POST /api/vocab/:id/regenerate-example
func (h *VocabHandler) RegenerateExample(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	item, err := h.svc.RegenerateExample(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.log.Warn("Example regeneration failed", "item_id", c.Param("id"), "error", err)
		response.RespondError(c, http.StatusInternalServerError, "upstream_error", errExampleUnavailable)
		return
	}
	response.RespondOK(c, item)
}

// PATCH /api/vocab/:id accepts note and/or mastered.
func (h *VocabHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		Note     *string `json:"note"`
		Mastered *bool   `json:"mastered"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Note == nil && req.Mastered == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errNothingToUpdate)
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	var (
		item types.VocabItem
		err  error
	)
	if req.Note != nil {
		if item, err = h.svc.UpdateNote(ctx, userID, id, *req.Note); err != nil {
			response.RespondAPIError(c, err)
			return
		}
	}
	if req.Mastered != nil {
		if item, err = h.svc.SetMastered(ctx, userID, id, *req.Mastered); err != nil {
			response.RespondAPIError(c, err)
			return
		}
	}
	response.RespondOK(c, item)
}

// GET /api/vocab/export
func (h *VocabHandler) Export(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	snap, err := h.svc.ExportAll(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	name := fmt.Sprintf("ielts-vocab-%s-%s.json", userID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	response.RespondOK(c, snap)
}

// POST /api/vocab/import
func (h *VocabHandler) Import(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req struct {
		Mode     types.ImportMode `json:"mode"`
		Snapshot json.RawMessage  `json:"snapshot"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	snap, err := vocab.ParseSnapshot(req.Snapshot)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	res, err := h.svc.ImportAll(c.Request.Context(), userID, snap, req.Mode)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/vocab/flashcards?unmastered=true
func (h *VocabHandler) Flashcards(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	only, _ := strconv.ParseBool(c.DefaultQuery("unmastered", "false"))
	cards, err := h.svc.Flashcards(c.Request.Context(), userID, only)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"cards": cards})
}

// GET /api/vocab/practice?n=10
func (h *VocabHandler) Practice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	n, _ := strconv.Atoi(c.DefaultQuery("n", "0"))
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	questions, err := h.svc.PracticeQuestions(c.Request.Context(), userID, n, rng)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"questions": questions})
}
