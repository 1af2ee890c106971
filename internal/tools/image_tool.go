package tools

import (
	"context"
	"encoding/json"
	"errors"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"colorcraft/internal/service"
)

type ImageTool struct {
	illustrator service.Illustrator
}

type ImageToolArgs struct {
	Description string `json:"description"`
	IsCover     bool   `json:"is_cover"`
}

type ImageToolResp struct {
	Image string `json:"image"`
}

func NewImageTool(illustrator service.Illustrator) *ImageTool {
	return &ImageTool{illustrator: illustrator}
}

func (t *ImageTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"description": {Type: schema.String, Required: true, Desc: "场景描述"},
		"is_cover":    {Type: schema.Boolean, Required: false, Desc: "是否为封面"},
	}
	return &schema.ToolInfo{
		Name:        "coloring_page_generate",
		Desc:        "调用Seedream生成一张3:4黑白线稿涂色页",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *ImageTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args ImageToolArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	if args.Description == "" {
		return "", errors.New("description required")
	}
	img, err := t.illustrator.Illustrate(ctx, args.Description, args.IsCover)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(ImageToolResp{Image: img})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ einotool.InvokableTool = (*ImageTool)(nil)
