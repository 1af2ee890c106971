package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/ark"
	einomodel "github.com/cloudwego/eino/components/model"

	"colorcraft/internal/volc"
)

// chatModelLoader 延迟创建方舟 ChatModel，凭证缺失时在第一次使用时报错
type chatModelLoader struct {
	ark    *volc.ArkClient
	model  string
	format *ark.ResponseFormat

	mu        sync.Mutex
	chatModel einomodel.BaseChatModel
}

func newChatModelLoader(arkClient *volc.ArkClient, modelName string, format *ark.ResponseFormat) *chatModelLoader {
	return &chatModelLoader{ark: arkClient, model: modelName, format: format}
}

func (l *chatModelLoader) Get(ctx context.Context) (einomodel.BaseChatModel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.chatModel != nil {
		return l.chatModel, nil
	}
	if err := l.ark.CheckCredential(); err != nil {
		return nil, err
	}
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:        l.ark.BaseURL + "/api/v3",
		Region:         "cn-beijing",
		APIKey:         l.ark.APIKey,
		HTTPClient:     l.ark.HTTPClient,
		Model:          l.model,
		ResponseFormat: l.format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	l.chatModel = chatModel
	return chatModel, nil
}
