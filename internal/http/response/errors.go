package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/ielts-tutor-backend/internal/platform/apierr"
)

var errInternal = errors.New("internal error")

// RespondAPIError classifies err and writes the standard envelope. Unclassified errors are
// reported without their text.
func RespondAPIError(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae == nil || ae.Status >= http.StatusInternalServerError && ae.Code == "internal_error" {
		if err != nil {
			_ = c.Error(err)
		}
		RespondError(c, http.StatusInternalServerError, "internal_error", errInternal)
		return
	}
	RespondError(c, ae.Status, ae.Code, ae.Err)
}

// GatewayError is the flat {"error": "..."} body used by the AI gateway endpoints.
type GatewayError struct {
	Error    string `json:"error"`
	Fallback bool   `json:"fallback,omitempty"`
}

func RespondGatewayError(c *gin.Context, status int, msg string) {
	c.JSON(status, GatewayError{Error: msg})
}
