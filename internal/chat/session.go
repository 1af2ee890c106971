package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"colorcraft/internal/model"
	"colorcraft/internal/service"
	"colorcraft/pkg/metrics"
)

const (
	Greeting    = "Hi! Need help thinking of a fun theme for the coloring book?"
	ApologyText = "Sorry, I'm having trouble connecting right now."
	greetingID  = "0"
)

// ErrTurnInProgress 上一条回复还在流式输出
var ErrTurnInProgress = errors.New("a reply is still streaming")

// ErrEmptyMessage 空消息
var ErrEmptyMessage = errors.New("message is empty")

// Controller 聊天会话：对话在第一次发送时创建并在会话期间复用，
// 记录只追加，流式回复只追加到同一条 model 消息上。
type Controller struct {
	chatter service.Chatter
	log     *logrus.Entry
	now     func() time.Time

	mu         sync.RWMutex
	transcript []model.ChatMessage
	typing     bool

	convMu sync.Mutex
	conv   service.Conversation
}

func NewController(chatter service.Chatter, log *logrus.Entry) *Controller {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Controller{chatter: chatter, log: log, now: time.Now}
	c.transcript = []model.ChatMessage{{
		ID:        greetingID,
		Role:      model.RoleModel,
		Text:      Greeting,
		Timestamp: c.now(),
	}}
	return c
}

// Transcript 返回聊天记录拷贝
func (c *Controller) Transcript() []model.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ChatMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Typing 回复流式输出期间为 true
func (c *Controller) Typing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.typing
}

// conversation 延迟创建对话，创建失败下次再试
func (c *Controller) conversation(ctx context.Context) (service.Conversation, error) {
	c.convMu.Lock()
	defer c.convMu.Unlock()
	if c.conv != nil {
		return c.conv, nil
	}
	conv, err := c.chatter.NewConversation(ctx)
	if err != nil {
		return nil, err
	}
	c.conv = conv
	return conv, nil
}

// SendMessage 先追加用户消息，再把流式回复追加到一条 model 消息上。
// onUpdate 在每次记录变化后收到变化的消息。传输失败不会返回错误，
// 而是写入一条固定的致歉消息。
func (c *Controller) SendMessage(ctx context.Context, text string, onUpdate func(model.ChatMessage)) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if onUpdate == nil {
		onUpdate = func(model.ChatMessage) {}
	}

	c.mu.Lock()
	if c.typing {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	c.typing = true
	userMsg := model.ChatMessage{ID: uuid.NewString(), Role: model.RoleUser, Text: text, Timestamp: c.now()}
	c.transcript = append(c.transcript, userMsg)
	c.mu.Unlock()
	onUpdate(userMsg)

	defer func() {
		c.mu.Lock()
		c.typing = false
		c.mu.Unlock()
	}()

	replyID, err := c.stream(ctx, text, onUpdate)
	if err == nil {
		metrics.ChatTurns.WithLabelValues("success").Inc()
		return nil
	}
	metrics.ChatTurns.WithLabelValues("error").Inc()
	c.log.WithError(err).Error("chat error")

	if replyID == "" {
		onUpdate(c.appendMessage(ApologyText))
		return nil
	}
	// 占位消息已经插入：还没有任何内容时换成致歉文本，否则保留已收到的部分
	if msg, ok := c.replaceIfEmpty(replyID, ApologyText); ok {
		onUpdate(msg)
	}
	return nil
}

// stream 返回占位消息的 id(尚未插入时为空)
func (c *Controller) stream(ctx context.Context, text string, onUpdate func(model.ChatMessage)) (string, error) {
	conv, err := c.conversation(ctx)
	if err != nil {
		return "", err
	}
	stream, err := conv.SendStream(ctx, text)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	placeholder := c.appendMessage("")
	onUpdate(placeholder)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return placeholder.ID, nil
		}
		if err != nil {
			return placeholder.ID, err
		}
		if chunk == "" {
			continue
		}
		onUpdate(c.appendFragment(placeholder.ID, chunk))
	}
}

func (c *Controller) appendMessage(text string) model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := model.ChatMessage{ID: uuid.NewString(), Role: model.RoleModel, Text: text, Timestamp: c.now()}
	c.transcript = append(c.transcript, msg)
	return msg
}

func (c *Controller) appendFragment(id, fragment string) model.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.transcript) - 1; i >= 0; i-- {
		if c.transcript[i].ID == id {
			c.transcript[i].Text += fragment
			return c.transcript[i]
		}
	}
	return model.ChatMessage{}
}

func (c *Controller) replaceIfEmpty(id, text string) (model.ChatMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.transcript) - 1; i >= 0; i-- {
		if c.transcript[i].ID == id {
			if c.transcript[i].Text != "" {
				return model.ChatMessage{}, false
			}
			c.transcript[i].Text = text
			return c.transcript[i], true
		}
	}
	return model.ChatMessage{}, false
}
