package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"colorcraft/internal/model"
	"colorcraft/internal/volc"
)

// ErrPlanFailed 规划失败，调用方不区分具体原因
var ErrPlanFailed = errors.New("planning failed")

// Planner 根据主题和孩子名字生成封面描述和内页描述
type Planner interface {
	Plan(ctx context.Context, theme, childName string) (*model.Plan, error)
}

const planInstruction = `You are a children's coloring book planner. Respond with ONLY valid JSON in this exact format:
{"coverDescription": "...", "pageDescriptions": ["...", "..."]}`

func buildPlanPrompt(theme, childName string, pages, maxWords int) string {
	return fmt.Sprintf(`Create a coloring book plan for a child named "%s" with the theme "%s".
I need 1 cover image description and %d distinct, fun, and cute page scene descriptions.
The descriptions should be visual and suitable for a black-and-white outline drawing.
Keep descriptions concise (under %d words).`, childName, theme, pages, maxWords)
}

type PlanOptions struct {
	PageCount           int
	MaxDescriptionWords int
}

func (o PlanOptions) withDefaults() PlanOptions {
	if o.PageCount <= 0 {
		o.PageCount = 5
	}
	if o.MaxDescriptionWords <= 0 {
		o.MaxDescriptionWords = 30
	}
	return o
}

// planResponseFormat 要求模型按规划的 JSON Schema 输出，ParsePlan 仍然做最终校验
func planResponseFormat() *ark.ResponseFormat {
	return &ark.ResponseFormat{
		Type: arkmodel.ResponseFormatJSONSchema,
		JSONSchema: &arkmodel.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:        "coloring_book_plan",
			Description: "One cover description and the page scene descriptions of a coloring book",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"coverDescription": map[string]any{"type": "string"},
					"pageDescriptions": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required":             []string{"coverDescription", "pageDescriptions"},
				"additionalProperties": false,
			},
			Strict: true,
		},
	}
}

// ArkPlanner 通过方舟 ChatModel 生成规划
type ArkPlanner struct {
	loader *chatModelLoader
	opts   PlanOptions

	mu       sync.Mutex
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewPlanner mock模式下返回不访问网络的规划器
func NewPlanner(arkClient *volc.ArkClient, chatModel string, opts PlanOptions) Planner {
	opts = opts.withDefaults()
	if arkClient.Mock {
		return &MockPlanner{opts: opts}
	}
	return &ArkPlanner{loader: newChatModelLoader(arkClient, chatModel, planResponseFormat()), opts: opts}
}

func (p *ArkPlanner) Plan(ctx context.Context, theme, childName string) (*model.Plan, error) {
	runnable, err := p.graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlanFailed, err)
	}
	messages := []*schema.Message{
		schema.SystemMessage(planInstruction),
		schema.UserMessage(buildPlanPrompt(theme, childName, p.opts.PageCount, p.opts.MaxDescriptionWords)),
	}
	res, err := runnable.Invoke(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: graph invocation failed: %w", ErrPlanFailed, err)
	}
	if len(res.Content) == 0 {
		return nil, fmt.Errorf("%w: no plan generated", ErrPlanFailed)
	}
	return ParsePlan(res.Content, p.opts.MaxDescriptionWords)
}

// graph 编译只有一个 ChatModel 节点的图，只编译一次
func (p *ArkPlanner) graph(ctx context.Context) (compose.Runnable[[]*schema.Message, *schema.Message], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runnable != nil {
		return p.runnable, nil
	}

	chatModel, err := p.loader.Get(ctx)
	if err != nil {
		return nil, err
	}
	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("planner", chatModel); err != nil {
		return nil, fmt.Errorf("failed to add planner node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "planner"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("planner", compose.END); err != nil {
		return nil, err
	}
	runnable, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph: %w", err)
	}
	p.runnable = runnable
	return runnable, nil
}

// ParsePlan 解析模型输出，任何不符合结构的响应都视为失败，不接受部分规划
func ParsePlan(content string, maxWords int) (*model.Plan, error) {
	raw := extractJSONObject(content)
	var plan model.Plan
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal plan: %w", ErrPlanFailed, err)
	}

	plan.CoverDescription = clampWords(plan.CoverDescription, maxWords)
	if plan.CoverDescription == "" {
		return nil, fmt.Errorf("%w: empty cover description", ErrPlanFailed)
	}
	if len(plan.PageDescriptions) == 0 {
		return nil, fmt.Errorf("%w: no page descriptions", ErrPlanFailed)
	}
	for i, desc := range plan.PageDescriptions {
		desc = clampWords(desc, maxWords)
		if desc == "" {
			return nil, fmt.Errorf("%w: empty description for page %d", ErrPlanFailed, i+1)
		}
		plan.PageDescriptions[i] = desc
	}
	return &plan, nil
}

// extractJSONObject 去掉```json围栏以及JSON前后夹杂的文本
func extractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

// clampWords 软性长度限制：超出的部分截掉并记录日志
func clampWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if maxWords > 0 && len(words) > maxWords {
		logrus.WithFields(logrus.Fields{"words": len(words), "max": maxWords}).Warn("description too long, truncated")
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

// MockPlanner ARK_MOCK 模式下的确定性规划
type MockPlanner struct {
	opts PlanOptions
}

func (p *MockPlanner) Plan(ctx context.Context, theme, childName string) (*model.Plan, error) {
	opts := p.opts.withDefaults()
	plan := &model.Plan{
		CoverDescription: fmt.Sprintf("%s smiling in the middle of a %s world", childName, theme),
	}
	for i := 1; i <= opts.PageCount; i++ {
		plan.PageDescriptions = append(plan.PageDescriptions,
			fmt.Sprintf("Scene %d: %s exploring a %s adventure", i, childName, theme))
	}
	return plan, nil
}
