package common

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketsim.com/pkg/xerr"
)

// http 返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    xerr.OK,
		Message: xerr.MapErrMsg(xerr.OK),
		Data:    data,
	})
}

// Fail 错误只回 code/message，data=null
func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}
