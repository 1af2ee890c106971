package agent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"colorcraft/internal/book"
	"colorcraft/internal/chat"
	"colorcraft/internal/model"
	"colorcraft/internal/service"
	"colorcraft/pkg/metrics"
)

// Workspace 一个浏览器会话对应的全部状态：一本书和一个聊天助手
type Workspace struct {
	ID   string
	Book *book.Orchestrator
	Chat *chat.Controller
}

// ColoringBookAgent 儿童涂色书助手，按会话管理工作区，不活跃的会话过期后被清理
type ColoringBookAgent struct {
	planner     service.Planner
	illustrator service.Illustrator
	chatter     service.Chatter

	sessions  *cache.Cache
	sessionMu sync.Mutex
}

func NewColoringBookAgent(planner service.Planner, illustrator service.Illustrator, chatter service.Chatter, ttl, cleanup time.Duration) *ColoringBookAgent {
	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(id string, _ interface{}) {
		metrics.ActiveSessions.Dec()
		logrus.WithField("session_id", id).Info("session expired")
	})
	return &ColoringBookAgent{
		planner:     planner,
		illustrator: illustrator,
		chatter:     chatter,
		sessions:    c,
	}
}

// GetWorkspace 获取已存在的工作区并刷新过期时间
func (a *ColoringBookAgent) GetWorkspace(sessionID string) (*Workspace, bool) {
	x, found := a.sessions.Get(sessionID)
	if !found {
		return nil, false
	}
	ws := x.(*Workspace)
	a.sessions.SetDefault(sessionID, ws)
	return ws, true
}

// Workspace 获取工作区，不存在时创建；sessionID 为空时生成新的
func (a *ColoringBookAgent) Workspace(sessionID string) *Workspace {
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	a.sessionMu.Lock()
	defer a.sessionMu.Unlock()

	if ws, ok := a.GetWorkspace(sessionID); ok {
		return ws
	}
	log := logrus.WithField("session_id", sessionID)
	ws := &Workspace{
		ID:   sessionID,
		Book: book.NewOrchestrator(a.planner, a.illustrator, log),
		Chat: chat.NewController(a.chatter, log),
	}
	a.sessions.SetDefault(sessionID, ws)
	metrics.ActiveSessions.Inc()
	return ws
}

// Info 获取agent信息
func (a *ColoringBookAgent) Info() map[string]interface{} {
	return map[string]interface{}{
		"name":        "coloring_book_agent",
		"description": "儿童涂色书生成助手，根据孩子的名字和主题规划封面与内页，并行生成线稿插画，导出PDF。",
		"states": []model.BookStatus{
			model.BookIdle,
			model.BookPlanning,
			model.BookGenerating,
			model.BookReady,
			model.BookError,
		},
		"sessions": a.sessions.ItemCount(),
	}
}

// generateSessionID 生成会话ID
func generateSessionID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("session_%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
