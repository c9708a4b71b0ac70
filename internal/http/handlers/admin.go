package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/ielts-tutor-backend/internal/http/response"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/admin"
)

type AdminHandler struct {
	svc *admin.Service
}

func NewAdminHandler(svc *admin.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, users)
}

// GET /api/admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	detail, err := h.svc.GetUserDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, detail)
}

// DELETE /api/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	response.RespondAPIError(c, h.svc.DeleteUser(c.Request.Context(), c.Param("id")))
}

// DELETE /api/admin/users/:id/vocab/:itemId
func (h *AdminHandler) DeleteVocabItem(c *gin.Context) {
	response.RespondAPIError(c, h.svc.DeleteVocabItem(c.Request.Context(), c.Param("id"), c.Param("itemId")))
}

// DELETE /api/admin/users/:id/lessons/:lessonId
func (h *AdminHandler) DeleteLesson(c *gin.Context) {
	response.RespondAPIError(c, h.svc.DeleteLesson(c.Request.Context(), c.Param("id"), c.Param("lessonId")))
}
