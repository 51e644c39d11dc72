package tool

import (
	"maps"

	"github.com/gin-gonic/gin"
)

// Control API envelopes: {"data": ...} on success, {"error": msg, ...} on
// failure, {"status": "ok"} when there is nothing to return.

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
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

// FastReturnErrorWithData merges data next to the error message.
func FastReturnErrorWithData(msg string, data map[string]any) gin.H {
	resp := gin.H{
		"error": msg,
	}
	maps.Copy(resp, data)
	return resp
}

// FastReturnSessionError is an error that points at the session it concerns.
func FastReturnSessionError(msg, sessionId string) gin.H {
	return FastReturnErrorWithData(msg, map[string]any{"sessionId": sessionId})
}
