package tools

import (
	"context"
	"encoding/json"
	"errors"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"colorcraft/internal/model"
	"colorcraft/internal/service"
)

// PlanTool 实现eino框架的涂色书规划工具
type PlanTool struct {
	planner service.Planner
}

// PlanToolArgs 规划请求参数
type PlanToolArgs struct {
	Theme     string `json:"theme"`
	ChildName string `json:"child_name"`
}

// PlanToolResp 规划响应
type PlanToolResp struct {
	model.Plan
	Count int `json:"count"`
}

func NewPlanTool(planner service.Planner) *PlanTool {
	return &PlanTool{planner: planner}
}

// Info 获取规划工具信息
func (t *PlanTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"theme":      {Type: schema.String, Required: true, Desc: "涂色书主题"},
		"child_name": {Type: schema.String, Required: true, Desc: "孩子的名字"},
	}
	return &schema.ToolInfo{
		Name:        "coloring_book_plan",
		Desc:        "为涂色书规划一个封面描述和若干内页场景描述",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

// InvokableRun 执行规划
func (t *PlanTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args PlanToolArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	if args.Theme == "" || args.ChildName == "" {
		return "", errors.New("theme and child_name required")
	}

	plan, err := t.planner.Plan(ctx, args.Theme, args.ChildName)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(PlanToolResp{Plan: *plan, Count: len(plan.PageDescriptions)})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ einotool.InvokableTool = (*PlanTool)(nil)
