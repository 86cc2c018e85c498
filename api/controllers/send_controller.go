package controllers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/transfer"
	"github.com/moyoez/localsend-session/types"
)

// SendController exposes the sender session to local tools.
type SendController struct {
	sender *transfer.Sender
	// base is the parent of every background transfer; cancelled on shutdown.
	base context.Context
}

func NewSendController(base context.Context, sender *transfer.Sender) *SendController {
	if base == nil {
		base = context.Background()
	}
	return &SendController{sender: sender, base: base}
}

// UserSend starts a transfer in the background; poll GET /send for its state.
// POST /api/self/v1/send
func (ctrl *SendController) UserSend(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseUserSendRequest(body)
	if err != nil {
		respondError(c, err)
		return
	}
	if net.ParseIP(strings.TrimSpace(request.Target.IP)) == nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid parameter: target.ip"))
		return
	}
	if request.Target.Port <= 0 {
		request.Target.Port = tool.DefaultPort
	}
	if len(request.Files) == 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing required parameter: files"))
		return
	}
	for _, f := range request.Files {
		if f.Path == "" && f.Text == "" {
			c.JSON(http.StatusBadRequest, tool.FastReturnError("Each file needs a path or text"))
			return
		}
	}
	if current, ok := ctrl.sender.Current(); ok && !current.Status.Terminal() {
		respondError(c, types.ErrBusy)
		return
	}

	target, files := request.Target, request.Files
	go func() {
		snapshot, err := ctrl.sender.Run(ctrl.base, target, files)
		switch {
		case err == nil:
			tool.DefaultLogger.Infof("[Send] Session %s to %s: %s", snapshot.SessionId, target.IP, snapshot.Status)
		case errors.Is(err, types.ErrCanceled):
			tool.DefaultLogger.Infof("[Send] Transfer to %s canceled", target.IP)
		default:
			tool.DefaultLogger.Warnf("[Send] Transfer to %s: %s", target.IP, transfer.DescribeError(err))
		}
	}()
	c.JSON(http.StatusAccepted, tool.FastReturnSuccess())
}

// UserSendStatus returns the outgoing session.
// GET /api/self/v1/send
func (ctrl *SendController) UserSendStatus(c *gin.Context) {
	snapshot, ok := ctrl.sender.Current()
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("No active session"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snapshot))
}

// UserSendCancel cancels the outgoing session.
// POST /api/self/v1/send/cancel
func (ctrl *SendController) UserSendCancel(c *gin.Context) {
	if err := ctrl.sender.CancelSession(c.Request.Context()); err != nil {
		c.JSON(http.StatusNotFound, tool.FastReturnError("No active session"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
