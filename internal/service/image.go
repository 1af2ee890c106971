package service

import (
	"context"
	"errors"
	"fmt"

	"colorcraft/internal/volc"
)

// ErrNoImage 图片生成响应中没有图片数据
var ErrNoImage = errors.New("failed to generate image")

// Illustrator 把一段场景描述渲染成一张涂色线稿，返回 data URI
type Illustrator interface {
	Illustrate(ctx context.Context, description string, isCover bool) (string, error)
}

// 所有请求都带有固定的风格约束：黑白线稿、粗轮廓、高对比、无阴影
const (
	coverTemplate = "A clean, black and white line art coloring book cover for kids. Theme: %s. Thick bold lines, white background, high contrast, vector style, cute, professional illustration. No shading, no grayscale."
	pageTemplate  = "A clean, black and white line art coloring book page for kids. Scene: %s. Thick bold lines, white background, high contrast, vector style, cute, professional illustration, simple enough for a child to color. No shading, no grayscale."
)

// BuildImagePrompt 按封面/内页选择模板
func BuildImagePrompt(description string, isCover bool) string {
	if isCover {
		return fmt.Sprintf(coverTemplate, description)
	}
	return fmt.Sprintf(pageTemplate, description)
}

// ArkIllustrator 调用 Seedream 生成 3:4 竖版图片
type ArkIllustrator struct {
	ark   *volc.ArkClient
	Model string
	Size  string
}

func NewIllustrator(arkClient *volc.ArkClient, modelName, size string) *ArkIllustrator {
	return &ArkIllustrator{ark: arkClient, Model: modelName, Size: size}
}

func (i *ArkIllustrator) Illustrate(ctx context.Context, description string, isCover bool) (string, error) {
	uri, err := i.ark.GenerateImage(ctx, volc.ImageGenParams{
		Model:  i.Model,
		Prompt: BuildImagePrompt(description, isCover),
		Size:   i.Size,
	})
	if errors.Is(err, volc.ErrNoImages) {
		return "", ErrNoImage
	}
	if err != nil {
		return "", err
	}
	if uri == "" {
		return "", ErrNoImage
	}
	return uri, nil
}
