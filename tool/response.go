package tool

import (
	"github.com/gin-gonic/gin"
)

// FastReturnError is the v1 error body: {"message": msg}.
func FastReturnError(msg string) gin.H {
	return gin.H{
		"message": msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"status": "ok",
	}
}

func FastReturnSuccessWithData(data any) gin.H {
	return gin.H{
		"data": data,
	}
}
