package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"colorcraft/internal/agent"
	"colorcraft/internal/chat"
	"colorcraft/internal/model"
	apperrors "colorcraft/pkg/errors"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleChat 流式返回一轮对话：message(用户消息) -> delta(模型消息快照) -> done
func handleChat(a *agent.ColoringBookAgent) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.ErrInvalidParam.WithDetail("无效的请求格式"), nil)
			return
		}
		text := strings.TrimSpace(req.Message)
		if text == "" {
			respondError(c, apperrors.ErrInvalidParam.WithDetail(chat.ErrEmptyMessage.Error()), nil)
			return
		}

		ws := a.Workspace(req.SessionID)
		log := requestLogger(c, ws.ID)
		clientGone := c.Request.Context().Done()

		// 客户端断开后这一轮仍然跑完，记录保持完整
		updates := make(chan model.ChatMessage, 16)
		errc := make(chan error, 1)
		go func() {
			defer close(updates)
			err := ws.Chat.SendMessage(context.WithoutCancel(c.Request.Context()), text, func(msg model.ChatMessage) {
				select {
				case updates <- msg:
				case <-clientGone:
				}
			})
			errc <- err
		}()

		first, ok := <-updates
		if !ok {
			// 客户端已断开时所有更新都可能被丢弃，此时 err 为 nil
			err := <-errc
			if err == nil {
				return
			}
			if errors.Is(err, chat.ErrTurnInProgress) {
				respondError(c, apperrors.ErrConflict.WithDetail(err.Error()), gin.H{"session_id": ws.ID})
				return
			}
			log.WithError(err).Error("chat turn rejected")
			respondError(c, apperrors.ErrChatFailed.WithDetail(err.Error()), gin.H{"session_id": ws.ID})
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Header("X-Session-ID", ws.ID)

		c.SSEvent("message", first)
		c.Writer.Flush()
		c.Stream(func(w io.Writer) bool {
			msg, ok := <-updates
			if !ok {
				c.SSEvent("done", gin.H{"session_id": ws.ID, "transcript": ws.Chat.Transcript()})
				return false
			}
			c.SSEvent("delta", msg)
			return true
		})
	}
}

// handleTranscript 聊天记录和输入状态
func handleTranscript(a *agent.ColoringBookAgent) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := a.GetWorkspace(c.Param("session_id"))
		if !ok {
			respondError(c, apperrors.ErrNotFound.WithDetail("session not found"), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": ws.ID,
			"messages":   ws.Chat.Transcript(),
			"typing":     ws.Chat.Typing(),
		})
	}
}
