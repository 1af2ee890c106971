package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"colorcraft/internal/config"
	"colorcraft/internal/volc"
)

// fakeChatModel Generate 返回 reply，Stream 按 chunks 输出
type fakeChatModel struct {
	reply     string
	chunks    []string
	err       error
	streamErr error // 输出完 chunks 后返回的错误
	inputs    [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	for _, c := range f.chunks {
		sw.Send(schema.AssistantMessage(c, nil), nil)
	}
	if f.streamErr != nil {
		sw.Send(nil, f.streamErr)
	}
	sw.Close()
	return sr, nil
}

func loaderWith(m einomodel.BaseChatModel) *chatModelLoader {
	return &chatModelLoader{ark: &volc.ArkClient{APIKey: "test"}, chatModel: m}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCover string
		wantPages int
		wantErr   bool
	}{
		{
			name:      "plain json",
			content:   `{"coverDescription":"A rocket","pageDescriptions":["A moon","A star"]}`,
			wantCover: "A rocket",
			wantPages: 2,
		},
		{
			name:      "fenced json with prose",
			content:   "Here you go:\n```json\n{\"coverDescription\":\"A castle\",\"pageDescriptions\":[\"A knight\"]}\n```",
			wantCover: "A castle",
			wantPages: 1,
		},
		{name: "not json", content: "sorry, I cannot help", wantErr: true},
		{name: "missing cover", content: `{"pageDescriptions":["A moon"]}`, wantErr: true},
		{name: "no pages", content: `{"coverDescription":"A rocket","pageDescriptions":[]}`, wantErr: true},
		{name: "blank page", content: `{"coverDescription":"A rocket","pageDescriptions":["A moon","  "]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.content, 30)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPlanFailed)
				assert.Nil(t, plan)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCover, plan.CoverDescription)
			assert.Len(t, plan.PageDescriptions, tt.wantPages)
		})
	}
}

func TestParsePlanClampsLongDescriptions(t *testing.T) {
	long := strings.Repeat("word ", 40)
	plan, err := ParsePlan(`{"coverDescription":"`+long+`","pageDescriptions":["short one"]}`, 30)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(plan.CoverDescription), 30)
	assert.Equal(t, "short one", plan.PageDescriptions[0])
}

func TestArkPlanner(t *testing.T) {
	m := &fakeChatModel{reply: `{"coverDescription":"Leo in space","pageDescriptions":["a","b","c","d","e"]}`}
	p := &ArkPlanner{loader: loaderWith(m), opts: PlanOptions{}.withDefaults()}

	plan, err := p.Plan(context.Background(), "Space", "Leo")
	require.NoError(t, err)
	assert.Equal(t, "Leo in space", plan.CoverDescription)
	assert.Len(t, plan.PageDescriptions, 5)

	require.Len(t, m.inputs, 1)
	prompt := m.inputs[0][len(m.inputs[0])-1].Content
	assert.Contains(t, prompt, `"Leo"`)
	assert.Contains(t, prompt, `"Space"`)
	assert.Contains(t, prompt, "5 distinct")
}

func TestArkPlannerFailures(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeChatModel
	}{
		{name: "model error", model: &fakeChatModel{err: errors.New("timeout")}},
		{name: "empty response", model: &fakeChatModel{reply: ""}},
		{name: "malformed response", model: &fakeChatModel{reply: "{not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ArkPlanner{loader: loaderWith(tt.model), opts: PlanOptions{}.withDefaults()}
			_, err := p.Plan(context.Background(), "Space", "Leo")
			assert.ErrorIs(t, err, ErrPlanFailed)
		})
	}
}

func TestArkPlannerRequestsPlanSchema(t *testing.T) {
	p, ok := NewPlanner(volc.NewArkClient(config.ArkConfig{APIKey: "test"}), "chat", PlanOptions{}).(*ArkPlanner)
	require.True(t, ok)

	format := p.loader.format
	require.NotNil(t, format)
	assert.Equal(t, arkmodel.ResponseFormatJSONSchema, format.Type)
	require.NotNil(t, format.JSONSchema)
	schemaDef, ok := format.JSONSchema.Schema.(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"coverDescription", "pageDescriptions"}, schemaDef["required"])

	chatter, ok := NewChatter(volc.NewArkClient(config.ArkConfig{APIKey: "test"}), "chat").(*ArkChatter)
	require.True(t, ok)
	assert.Nil(t, chatter.loader.format)
}

func TestPlannerMissingCredential(t *testing.T) {
	p := NewPlanner(volc.NewArkClient(config.ArkConfig{}), "chat", PlanOptions{})
	_, err := p.Plan(context.Background(), "Space", "Leo")
	assert.ErrorIs(t, err, ErrPlanFailed)
	assert.ErrorIs(t, err, volc.ErrMissingAPIKey)
}

func TestMockPlanner(t *testing.T) {
	p := NewPlanner(volc.NewArkClient(config.ArkConfig{Mock: true}), "", PlanOptions{PageCount: 3})
	plan, err := p.Plan(context.Background(), "Farm", "Sam")
	require.NoError(t, err)
	assert.Contains(t, plan.CoverDescription, "Sam")
	assert.Len(t, plan.PageDescriptions, 3)
}

func TestBuildImagePrompt(t *testing.T) {
	cover := BuildImagePrompt("a happy dragon", true)
	page := BuildImagePrompt("a happy dragon", false)

	assert.Contains(t, cover, "coloring book cover")
	assert.Contains(t, cover, "Theme: a happy dragon.")
	assert.Contains(t, page, "coloring book page")
	assert.Contains(t, page, "Scene: a happy dragon.")
	for _, p := range []string{cover, page} {
		assert.Contains(t, p, "black and white line art")
		assert.Contains(t, p, "No shading, no grayscale.")
	}
}

func drain(t *testing.T, s ChatStream) string {
	t.Helper()
	var sb strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String()
		}
		require.NoError(t, err)
		sb.WriteString(chunk)
	}
}

func TestArkConversationKeepsHistory(t *testing.T) {
	m := &fakeChatModel{chunks: []string{"How ", "about ", "pirates?"}}
	conv := &arkConversation{loader: loaderWith(m), history: []*schema.Message{schema.SystemMessage(chatInstruction)}}

	s, err := conv.SendStream(context.Background(), "ideas?")
	require.NoError(t, err)
	assert.Equal(t, "How about pirates?", drain(t, s))
	s.Close()

	_, err = conv.SendStream(context.Background(), "more")
	require.NoError(t, err)

	require.Len(t, m.inputs, 2)
	second := m.inputs[1]
	require.Len(t, second, 4)
	assert.Equal(t, schema.System, second[0].Role)
	assert.Equal(t, "ideas?", second[1].Content)
	assert.Equal(t, "How about pirates?", second[2].Content)
	assert.Equal(t, "more", second[3].Content)
}

func TestArkConversationRecordsPartialTurn(t *testing.T) {
	tests := []struct {
		name        string
		chunks      []string
		wantHistory int
	}{
		{name: "partial reply kept", chunks: []string{"How ", "about "}, wantHistory: 4},
		{name: "nothing received", chunks: nil, wantHistory: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeChatModel{chunks: tt.chunks, streamErr: errors.New("connection reset")}
			conv := &arkConversation{loader: loaderWith(m), history: []*schema.Message{schema.SystemMessage(chatInstruction)}}

			s, err := conv.SendStream(context.Background(), "ideas?")
			require.NoError(t, err)
			for {
				_, err = s.Recv()
				if err != nil {
					break
				}
			}
			assert.NotErrorIs(t, err, io.EOF)
			s.Close()

			m.chunks, m.streamErr = []string{"ok"}, nil
			_, err = conv.SendStream(context.Background(), "again")
			require.NoError(t, err)

			next := m.inputs[1]
			require.Len(t, next, tt.wantHistory)
			if tt.wantHistory == 4 {
				assert.Equal(t, "ideas?", next[1].Content)
				assert.Equal(t, "How about ", next[2].Content)
			}
			assert.Equal(t, "again", next[len(next)-1].Content)
		})
	}
}

func TestChatterMissingCredential(t *testing.T) {
	c := NewChatter(volc.NewArkClient(config.ArkConfig{}), "chat")
	_, err := c.NewConversation(context.Background())
	assert.ErrorIs(t, err, volc.ErrMissingAPIKey)
}

func TestMockChatter(t *testing.T) {
	c := NewChatter(volc.NewArkClient(config.ArkConfig{Mock: true}), "")
	conv, err := c.NewConversation(context.Background())
	require.NoError(t, err)
	s, err := conv.SendStream(context.Background(), "hi")
	require.NoError(t, err)
	assert.Contains(t, drain(t, s), "Space Dinosaurs")
}
