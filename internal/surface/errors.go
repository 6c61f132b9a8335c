package surface

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/control"
	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/tree"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, schedule.ErrAtCapacity),
		errors.Is(err, schedule.ErrLastBlock),
		errors.Is(err, schedule.ErrDirty):
		return http.StatusConflict
	case errors.Is(err, schedule.ErrIndexOutOfRange),
		errors.Is(err, control.ErrLedgerDisabled):
		return http.StatusNotFound
	case errors.Is(err, schedule.ErrInvalidDay),
		errors.Is(err, schedule.ErrInvalidTime),
		errors.Is(err, schedule.ErrInvalidField),
		errors.Is(err, control.ErrInvalidMode),
		errors.Is(err, control.ErrInvalidProgram),
		errors.Is(err, control.ErrInvalidBrightness),
		errors.Is(err, control.ErrInvalidMinutes):
		return http.StatusBadRequest
	case errors.Is(err, control.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	if httpErr, ok := tree.AsHTTPError(err); ok {
		body["method"] = httpErr.Method
		body["path"] = httpErr.Path
		body["status"] = httpErr.Status
		body["body"] = httpErr.Body
	}
	if status >= http.StatusInternalServerError {
		log.Warn().Err(err).Str("path", c.FullPath()).Int("status", status).Msg("Surface request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
