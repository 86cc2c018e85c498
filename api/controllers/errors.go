package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// respondError writes the terse {"message"} body with the status mapped from err.
func respondError(c *gin.Context, err error) {
	c.JSON(types.StatusCode(err), tool.FastReturnError(publicMessage(err)))
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, types.ErrBusy):
		return "Blocked by another session"
	case errors.Is(err, types.ErrMissingParameters):
		return "Missing parameters"
	case errors.Is(err, types.ErrInvalidRequest):
		return "Request body malformed"
	case errors.Is(err, types.ErrWrongIP):
		return "Invalid IP address"
	case errors.Is(err, types.ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, types.ErrWrongState):
		return "No session or wrong state"
	case errors.Is(err, types.ErrDeclined):
		return "File request declined by recipient"
	case errors.Is(err, types.ErrTooManyRequests):
		return "Too many requests"
	case errors.Is(err, types.ErrInvalidState):
		return "Session invalidated"
	case errors.Is(err, types.ErrIOFailure):
		return "Failed to save file"
	case errors.Is(err, types.ErrNoSession):
		return "No pending session"
	default:
		return "Internal server error"
	}
}
