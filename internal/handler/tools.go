package handler

import (
	"context"
	"fmt"
	"net/http"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/gin-gonic/gin"

	"colorcraft/internal/agent"
	apperrors "colorcraft/pkg/errors"
)

// handleToolInvoke 请求体直接作为工具的JSON参数
func handleToolInvoke(tool einotool.InvokableTool, failure *apperrors.AppError) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil || len(body) == 0 {
			respondError(c, apperrors.ErrInvalidParam.WithDetail("无效的请求格式"), nil)
			return
		}

		result, err := tool.InvokableRun(c.Request.Context(), string(body))
		if err != nil {
			requestLogger(c, "").WithError(err).Error("tool invoke failed")
			respondError(c, failure.WithDetail(err.Error()), nil)
			return
		}
		c.Data(http.StatusOK, "application/json", []byte(result))
	}
}

// handleAgentInfo agent信息，附带可用工具的描述
func handleAgentInfo(a *agent.ColoringBookAgent, tools ...einotool.InvokableTool) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := a.Info()
		infos := make([]gin.H, 0, len(tools))
		for _, t := range tools {
			ti, err := t.Info(context.Background())
			if err != nil {
				respondError(c, apperrors.ErrInternalError.WithDetail(fmt.Sprintf("tool info: %v", err)), nil)
				return
			}
			infos = append(infos, gin.H{"name": ti.Name, "desc": ti.Desc})
		}
		info["tools"] = infos
		c.JSON(http.StatusOK, info)
	}
}
