package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"colorcraft/internal/volc"
)

const chatInstruction = "You are a friendly, creative assistant helping a parent design a custom coloring book. Help them brainstorm themes, suggest characters, or refine ideas. Keep answers concise and helpful."

// ChatStream 一次回复的增量文本，结束时 Recv 返回 io.EOF
type ChatStream interface {
	Recv() (string, error)
	Close()
}

// Conversation 一段持续的对话，保存历史
type Conversation interface {
	SendStream(ctx context.Context, text string) (ChatStream, error)
}

// Chatter 创建对话
type Chatter interface {
	NewConversation(ctx context.Context) (Conversation, error)
}

type ArkChatter struct {
	loader *chatModelLoader
}

// NewChatter mock模式下返回本地的固定回复
func NewChatter(arkClient *volc.ArkClient, chatModel string) Chatter {
	if arkClient.Mock {
		return MockChatter{}
	}
	return &ArkChatter{loader: newChatModelLoader(arkClient, chatModel, nil)}
}

func (c *ArkChatter) NewConversation(ctx context.Context) (Conversation, error) {
	if err := c.loader.ark.CheckCredential(); err != nil {
		return nil, err
	}
	return &arkConversation{
		loader:  c.loader,
		history: []*schema.Message{schema.SystemMessage(chatInstruction)},
	}, nil
}

type arkConversation struct {
	loader *chatModelLoader

	mu      sync.Mutex
	history []*schema.Message
}

func (c *arkConversation) SendStream(ctx context.Context, text string) (ChatStream, error) {
	chatModel, err := c.loader.Get(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	msgs := make([]*schema.Message, 0, len(c.history)+1)
	msgs = append(msgs, c.history...)
	c.mu.Unlock()
	user := schema.UserMessage(text)
	msgs = append(msgs, user)

	reader, err := chatModel.Stream(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("chat stream: %w", err)
	}
	return &arkStream{conv: c, user: user, reader: reader}, nil
}

// record 写入一个回合。中途失败但已收到部分文本时也写入，与用户看到的记录保持一致；
// 一个字都没收到的回合不写入，用户看到的致歉消息不是模型的回复。
func (c *arkConversation) record(user *schema.Message, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, user, schema.AssistantMessage(reply, nil))
}

type arkStream struct {
	conv   *arkConversation
	user   *schema.Message
	reader *schema.StreamReader[*schema.Message]
	reply  strings.Builder
	done   bool
}

func (s *arkStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			if !s.done {
				s.done = true
				s.conv.record(s.user, s.reply.String())
			}
			return "", io.EOF
		}
		if err != nil {
			if !s.done && s.reply.Len() > 0 {
				s.done = true
				s.conv.record(s.user, s.reply.String())
			}
			return "", err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		s.reply.WriteString(msg.Content)
		return msg.Content, nil
	}
}

func (s *arkStream) Close() {
	s.reader.Close()
}

// MockChatter 逐词返回固定回复
type MockChatter struct{}

func (MockChatter) NewConversation(ctx context.Context) (Conversation, error) {
	return MockChatter{}, nil
}

func (MockChatter) SendStream(ctx context.Context, text string) (ChatStream, error) {
	reply := "How about Space Dinosaurs, Underwater Castles, or a Jungle Tea Party?"
	return &sliceStream{chunks: strings.SplitAfter(reply, " ")}, nil
}

type sliceStream struct {
	chunks []string
	pos    int
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() {}
