package controllers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/notify"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// ReceiveController binds the v1 peer API to the receive session registry.
type ReceiveController struct {
	registry  *models.Registry
	observer  notify.Observer
	limiter   *rate.Limiter
	showToken string
}

// NewReceiveController limits send-requests to negotiationsPerMinute; zero or less disables the limit.
func NewReceiveController(registry *models.Registry, observer notify.Observer, showToken string, negotiationsPerMinute int) *ReceiveController {
	if observer == nil {
		observer = notify.Nop
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if negotiationsPerMinute > 0 {
		burst := max(negotiationsPerMinute/6, 1)
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(negotiationsPerMinute)), burst)
	}
	return &ReceiveController{
		registry:  registry,
		observer:  observer,
		limiter:   limiter,
		showToken: showToken,
	}
}

// HandleSendRequest blocks until the batch is decided.
// POST /api/localsend/v1/send-request
func (ctrl *ReceiveController) HandleSendRequest(c *gin.Context) {
	if holder, busy := ctrl.registry.SenderIP(); busy {
		tool.DefaultLogger.Infof("[SendRequest] Refusing %s, session held by %s", c.ClientIP(), holder)
		respondError(c, types.ErrBusy)
		return
	}
	if !ctrl.limiter.Allow() {
		tool.DefaultLogger.Warnf("[SendRequest] Rate limited request from %s", c.ClientIP())
		respondError(c, types.ErrTooManyRequests)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		tool.DefaultLogger.Errorf("Failed to read send-request body: %v", err)
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseSendRequest(body)
	if err != nil {
		tool.DefaultLogger.Errorf("[SendRequest] %v", err)
		respondError(c, err)
		return
	}

	tool.DefaultLogger.Infof("[SendRequest] Received send-request from %s (%s), %d files", request.Info.Alias, c.ClientIP(), len(request.Files))

	response, err := ctrl.registry.Negotiate(c.Request.Context(), *request, c.ClientIP())
	if err != nil {
		tool.DefaultLogger.Infof("[SendRequest] Negotiation with %s ended: %v", c.ClientIP(), err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// HandleSend streams one accepted file body to disk.
// POST /api/localsend/v1/send?fileId=&token=
func (ctrl *ReceiveController) HandleSend(c *gin.Context) {
	fileId := c.Query("fileId")
	token := c.Query("token")
	if fileId == "" || token == "" {
		tool.DefaultLogger.Errorf("Missing required parameters: fileId=%s", fileId)
		respondError(c, types.ErrMissingParameters)
		return
	}

	remoteAddr := c.ClientIP()
	sessionId, err := ctrl.registry.BeginUpload(fileId, token, remoteAddr)
	if err != nil {
		tool.DefaultLogger.Warnf("[Upload] Rejected upload of %s from %s: %v", fileId, remoteAddr, err)
		respondError(c, err)
		return
	}

	tool.DefaultLogger.Infof("[Upload] Receiving fileId=%s (%d bytes) from %s", fileId, c.Request.ContentLength, remoteAddr)
	body := &abortableBody{ReadCloser: c.Request.Body, rc: http.NewResponseController(c.Writer)}
	if err := ctrl.registry.StreamFileBody(c.Request.Context(), sessionId, fileId, body, c.Request.ContentLength, nil); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// abortableBody unblocks a pending read on close by expiring the connection's read deadline;
// closing a server request body alone waits for the read in progress.
type abortableBody struct {
	io.ReadCloser
	rc *http.ResponseController
}

func (b *abortableBody) Close() error {
	if err := b.rc.SetReadDeadline(time.Now()); err != nil {
		tool.DefaultLogger.Debugf("[Upload] set read deadline: %v", err)
	}
	return b.ReadCloser.Close()
}

// HandleCancel always answers 200; only the negotiated sender can end the session.
// POST /api/localsend/v1/cancel
func (ctrl *ReceiveController) HandleCancel(c *gin.Context) {
	if !ctrl.registry.CancelBySender(c.ClientIP()) {
		tool.DefaultLogger.Debugf("[Cancel] Ignored cancel from %s", c.ClientIP())
	}
	c.Status(http.StatusOK)
}

// HandleShow asks the presentation layer to come forward when the token matches.
// POST /api/localsend/v1/show?token=
func (ctrl *ReceiveController) HandleShow(c *gin.Context) {
	token := c.Query("token")
	if ctrl.showToken == "" || token != ctrl.showToken {
		c.JSON(http.StatusForbidden, tool.FastReturnError("Invalid token"))
		return
	}
	ctrl.observer.Notify(notify.ShowRequested(c.ClientIP()))
	c.Status(http.StatusOK)
}
