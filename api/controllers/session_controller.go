package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/tool"
)

// SessionController is the local approval side of the receive session.
type SessionController struct {
	registry *models.Registry
}

func NewSessionController(registry *models.Registry) *SessionController {
	return &SessionController{registry: registry}
}

// UserGetSession returns the active receive session.
// GET /api/self/v1/session
func (ctrl *SessionController) UserGetSession(c *gin.Context) {
	snapshot, ok := ctrl.registry.Current()
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("No active session"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snapshot))
}

// UserGetRecentSession returns the active session or one that ended recently.
// GET /api/self/v1/session/:id
func (ctrl *SessionController) UserGetRecentSession(c *gin.Context) {
	id := c.Param("id")
	if snapshot, ok := ctrl.registry.Current(); ok && snapshot.SessionId == id {
		c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snapshot))
		return
	}
	snapshot, ok := ctrl.registry.Recent(id)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Session not found or expired"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(snapshot))
}

// UserDecide resolves the pending decision. {"files": null} declines.
// POST /api/self/v1/decide
func (ctrl *SessionController) UserDecide(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseDecisionRequest(body)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := ctrl.registry.Decide(request.Files); err != nil {
		c.JSON(http.StatusNotFound, tool.FastReturnError("No session waiting for a decision"))
		return
	}
	tool.DefaultLogger.Infof("[Decide] Decision published: %d files selected, declined=%v", len(request.Files), request.Files == nil)
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// UserClose destroys the receive session.
// POST /api/self/v1/close
func (ctrl *SessionController) UserClose(c *gin.Context) {
	if !ctrl.registry.Close() {
		c.JSON(http.StatusNotFound, tool.FastReturnError("No active session"))
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

// UserSetAutoAccept toggles quick-save.
// POST /api/self/v1/auto-accept?enabled=true
func (ctrl *SessionController) UserSetAutoAccept(c *gin.Context) {
	enabled := c.Query("enabled") == "true"
	ctrl.registry.SetAutoAccept(enabled)
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(gin.H{"autoAccept": enabled}))
}

