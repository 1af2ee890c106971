package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"colorcraft/internal/agent"
	"colorcraft/internal/book"
	"colorcraft/internal/export"
	"colorcraft/internal/model"
	"colorcraft/internal/storage"
	"colorcraft/internal/volc"
	apperrors "colorcraft/pkg/errors"
	"colorcraft/pkg/metrics"
)

// ObjectURLHeader 导出文档上传到对象存储后的地址
const ObjectURLHeader = "X-Object-URL"

type generateRequest struct {
	SessionID string `json:"session_id"`
	Theme     string `json:"theme"`
	ChildName string `json:"child_name"`
}

// handleGenerate 规划完成后立即返回，图片在后台并行生成
func handleGenerate(a *agent.ColoringBookAgent) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.ErrInvalidParam.WithDetail("无效的请求格式"), nil)
			return
		}
		if strings.TrimSpace(req.Theme) == "" || strings.TrimSpace(req.ChildName) == "" {
			respondError(c, apperrors.ErrInvalidParam.WithDetail(book.ErrInvalidInput.Error()), nil)
			return
		}

		ws := a.Workspace(req.SessionID)
		log := requestLogger(c, ws.ID)
		run, err := ws.Book.Generate(c.Request.Context(), req.Theme, req.ChildName)
		switch {
		case errors.Is(err, book.ErrInvalidInput):
			respondError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()), nil)
		case errors.Is(err, book.ErrSuperseded):
			respondError(c, apperrors.ErrConflict.WithDetail(err.Error()), gin.H{"session_id": ws.ID, "state": ws.Book.State()})
		case errors.Is(err, volc.ErrMissingAPIKey):
			log.WithError(err).Error("generate: missing credential")
			respondError(c, apperrors.ErrConfig.WithDetail(err.Error()), gin.H{"session_id": ws.ID, "state": run.State})
		case err != nil:
			log.WithError(err).Error("generate: plan failed")
			respondError(c, apperrors.ErrPlanFailed, gin.H{"session_id": ws.ID, "state": run.State})
		default:
			c.JSON(http.StatusAccepted, gin.H{"session_id": ws.ID, "state": run.State})
		}
	}
}

// handleBookState 当前书本状态
func handleBookState(a *agent.ColoringBookAgent) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := a.GetWorkspace(c.Param("session_id"))
		if !ok {
			respondError(c, apperrors.ErrNotFound.WithDetail("session not found"), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": ws.ID, "state": ws.Book.State()})
	}
}

// handleBookEvents 以SSE推送状态快照，直到 ready 或 error
func handleBookEvents(a *agent.ColoringBookAgent) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := a.GetWorkspace(c.Param("session_id"))
		if !ok {
			respondError(c, apperrors.ErrNotFound.WithDetail("session not found"), nil)
			return
		}
		updates, cancel := ws.Book.Store().Subscribe()
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ctx := c.Request.Context()
		c.Stream(func(w io.Writer) bool {
			select {
			case state, ok := <-updates:
				if !ok {
					return false
				}
				c.SSEvent("state", state)
				return state.Status != model.BookReady && state.Status != model.BookError
			case <-ctx.Done():
				return false
			}
		})
	}
}

// handleExportPDF 导出PDF，只允许在所有条目都到达终态之后调用
func handleExportPDF(a *agent.ColoringBookAgent, uploader storage.Uploader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, ok := a.GetWorkspace(c.Param("session_id"))
		if !ok {
			respondError(c, apperrors.ErrNotFound.WithDetail("session not found"), nil)
			return
		}
		log := requestLogger(c, ws.ID)
		state := ws.Book.State()
		if state.Status != model.BookReady {
			respondError(c, apperrors.ErrConflict.WithDetail(fmt.Sprintf("book is %s, not ready", state.Status)), nil)
			return
		}

		doc, err := export.Export(state)
		if err != nil {
			metrics.ExportTotal.WithLabelValues("error").Inc()
			log.WithError(err).Error("export pdf failed")
			respondError(c, apperrors.ErrExportFailed.WithDetail(err.Error()), nil)
			return
		}
		metrics.ExportTotal.WithLabelValues("success").Inc()
		log.WithField("pages", doc.Pages).Info("pdf exported")

		if uploader != nil {
			key := fmt.Sprintf("%s/%d/%s", ws.ID, state.Generation, doc.FileName)
			url, err := uploader.Upload(c.Request.Context(), key, doc.Data, "application/pdf")
			if err != nil {
				log.WithError(err).Warn("upload pdf failed")
			} else {
				c.Header(ObjectURLHeader, url)
			}
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
		c.Data(http.StatusOK, "application/pdf", doc.Data)
	}
}
