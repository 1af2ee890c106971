package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "colorcraft/pkg/errors"
)

// respondError 统一错误响应，extra 中的字段与错误一起返回
func respondError(c *gin.Context, err *apperrors.AppError, extra gin.H) {
	body := gin.H{"error": err}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(err.HTTPStatus, body)
}
