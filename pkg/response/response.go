package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"` // 状态码，通常为 200 表示成功，非 200 为错误码
	Message string      `json:"msg"`  // 响应的消息描述
	Data    interface{} `json:"data"` // 返回的数据，可以是任意类型
}

// CodedError gives an error a stable machine-readable code and a message
// meant for the client
type CodedError struct {
	Code string
	Msg  string
	Err  error
}

func (e *CodedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *CodedError) Unwrap() error { return e.Err }

func Success(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  msg,
		"data": data,
	})
}

func Fail(c *gin.Context, msg string, data interface{}) {
	errorResponse := gin.H{
		"code": 500,
		"msg":  msg,
		"data": data,
	}

	// If data contains error information, extract it for consistent format
	if dataMap, ok := data.(gin.H); ok {
		if errorCode, exists := dataMap["error"]; exists {
			errorResponse["error"] = errorCode
		}
		if message, exists := dataMap["message"]; exists && msg == "" {
			errorResponse["msg"] = message
		}
	}

	c.JSON(http.StatusOK, errorResponse)
}

func Result(context *gin.Context, httpStatus int, code int, msg string, data gin.H) {
	context.JSON(httpStatus, gin.H{
		"code": code,
		"msg":  msg,
		"data": data,
	})
}

func AbortWithStatus(c *gin.Context, httpStatus int) {
	c.AbortWithStatus(httpStatus)
}

// AbortWithStatusJSON 返回统一的错误结构；CodedError 提供 error 字段和友好提示
func AbortWithStatusJSON(c *gin.Context, httpStatus int, err error) {
	errorResponse := gin.H{
		"code":  httpStatus,
		"msg":   err.Error(),
		"data":  nil,
		"error": "UNKNOWN_ERROR",
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		errorResponse["error"] = coded.Code
		if coded.Msg != "" {
			errorResponse["msg"] = coded.Msg
		}
	}

	c.AbortWithStatusJSON(httpStatus, errorResponse)
}
