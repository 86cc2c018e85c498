package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/localsend-session/api/models"
	"github.com/moyoez/localsend-session/tool"
	"github.com/moyoez/localsend-session/types"
)

// see here https://github.com/localsend/protocol/blob/main/v1.md
func HandleLocalsendV1InfoGet(c *gin.Context) {
	selfDevice := models.GetSelfDevice()
	if tool.CheckFingerPrintIsSame(c.Query("fingerprint"), selfDevice.Fingerprint) {
		tool.DefaultLogger.Debugf("[Info] Self discovery from %s, ignoring", c.ClientIP())
		c.JSON(http.StatusPreconditionFailed, tool.FastReturnError("Self-discovered"))
		return
	}
	c.JSON(http.StatusOK, types.InfoResponse{
		Alias:       selfDevice.Alias,
		DeviceModel: selfDevice.DeviceModel,
		DeviceType:  selfDevice.DeviceType,
	})
}
