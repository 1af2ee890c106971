package book

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorcraft/internal/model"
)

func plannedState(t *testing.T, pages int) model.BookState {
	t.Helper()
	s := Reset(model.NewBookState(), "Space", "Leo")
	plan := &model.Plan{CoverDescription: "cover"}
	for i := 1; i <= pages; i++ {
		plan.PageDescriptions = append(plan.PageDescriptions, fmt.Sprintf("page %d", i))
	}
	s, ok := ApplyPlan(s, s.Generation, plan)
	require.True(t, ok)
	return s
}

func TestApplyPlanAssignsIDs(t *testing.T) {
	s := plannedState(t, 4)

	assert.Equal(t, model.BookGenerating, s.Status)
	assert.Equal(t, model.CoverID, s.Cover.ID)
	assert.Equal(t, model.ItemPending, s.Cover.Status)
	require.Len(t, s.Pages, 4)
	for i, p := range s.Pages {
		assert.Equal(t, i+1, p.ID)
		assert.Equal(t, fmt.Sprintf("page %d", i+1), p.Description)
		assert.Equal(t, model.ItemPending, p.Status)
	}
}

func TestResetClearsPreviousBook(t *testing.T) {
	s := plannedState(t, 2)
	s, _ = ApplyItem(s, ItemEvent{Generation: s.Generation, ItemID: 1, ImageData: "data:image/png;base64,AA=="})

	next := Reset(s, "  Dinosaurs ", " Mia ")
	assert.Equal(t, "Dinosaurs", next.Theme)
	assert.Equal(t, "Mia", next.ChildName)
	assert.Equal(t, model.BookPlanning, next.Status)
	assert.Empty(t, next.Pages)
	assert.Empty(t, next.Cover.ImageData)
	assert.Empty(t, next.Error)
	assert.Equal(t, s.Generation+1, next.Generation)
}

func TestApplyPlanFailureCreatesNoItems(t *testing.T) {
	s := Reset(model.NewBookState(), "Space", "Leo")
	s, ok := ApplyPlanFailure(s, s.Generation)

	require.True(t, ok)
	assert.Equal(t, model.BookError, s.Status)
	assert.Equal(t, PlanFailedMessage, s.Error)
	assert.Empty(t, s.Pages)
	assert.Empty(t, s.Cover.ImageData)
}

func TestApplyItem(t *testing.T) {
	tests := []struct {
		name       string
		event      func(s model.BookState) ItemEvent
		wantOK     bool
		wantStatus model.ItemStatus
	}{
		{
			name:       "success",
			event:      func(s model.BookState) ItemEvent { return ItemEvent{Generation: s.Generation, ItemID: 2, ImageData: "data:x"} },
			wantOK:     true,
			wantStatus: model.ItemComplete,
		},
		{
			name:       "failure",
			event:      func(s model.BookState) ItemEvent { return ItemEvent{Generation: s.Generation, ItemID: 2, Err: errors.New("boom")} },
			wantOK:     true,
			wantStatus: model.ItemError,
		},
		{
			name:       "empty image is an error",
			event:      func(s model.BookState) ItemEvent { return ItemEvent{Generation: s.Generation, ItemID: 2} },
			wantOK:     true,
			wantStatus: model.ItemError,
		},
		{
			name:       "stale generation dropped",
			event:      func(s model.BookState) ItemEvent { return ItemEvent{Generation: s.Generation - 1, ItemID: 2, ImageData: "data:x"} },
			wantOK:     false,
			wantStatus: model.ItemPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := plannedState(t, 3)
			next, ok := ApplyItem(s, tt.event(s))

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, next.Pages[1].Status)
			// 其他条目不受影响
			assert.Equal(t, model.ItemPending, next.Cover.Status)
			assert.Equal(t, model.ItemPending, next.Pages[0].Status)
			assert.Equal(t, model.ItemPending, next.Pages[2].Status)
			assert.Equal(t, model.BookGenerating, next.Status)
		})
	}
}

func TestApplyItemUnknownOrTerminal(t *testing.T) {
	s := plannedState(t, 2)

	_, ok := ApplyItem(s, ItemEvent{Generation: s.Generation, ItemID: 9, ImageData: "data:x"})
	assert.False(t, ok)

	s, ok = ApplyItem(s, ItemEvent{Generation: s.Generation, ItemID: 1, Err: errors.New("boom")})
	require.True(t, ok)
	s, ok = ApplyItem(s, ItemEvent{Generation: s.Generation, ItemID: 1, ImageData: "data:x"})
	assert.False(t, ok)
	assert.Equal(t, model.ItemError, s.Pages[0].Status)
}

func TestReadyOnlyWhenAllTerminal(t *testing.T) {
	s := plannedState(t, 2)
	gen := s.Generation

	s, _ = ApplyItem(s, ItemEvent{Generation: gen, ItemID: 0, ImageData: "data:cover"})
	assert.Equal(t, model.BookGenerating, s.Status)
	s, _ = ApplyItem(s, ItemEvent{Generation: gen, ItemID: 2, Err: errors.New("boom")})
	assert.Equal(t, model.BookGenerating, s.Status)
	s, _ = ApplyItem(s, ItemEvent{Generation: gen, ItemID: 1, ImageData: "data:one"})
	assert.Equal(t, model.BookReady, s.Status)
}

// permutations 返回 n 个元素的全部排列
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestApplyItemOrderIndependent(t *testing.T) {
	base := plannedState(t, 3)
	events := []ItemEvent{
		{Generation: base.Generation, ItemID: 0, ImageData: "data:cover"},
		{Generation: base.Generation, ItemID: 1, ImageData: "data:one"},
		{Generation: base.Generation, ItemID: 2, Err: errors.New("boom")},
		{Generation: base.Generation, ItemID: 3, ImageData: "data:three"},
	}

	var want *model.BookState
	for _, order := range permutations(len(events)) {
		s := base
		for _, idx := range order {
			s, _ = ApplyItem(s, events[idx])
		}
		if want == nil {
			want = &s
			continue
		}
		assert.Equal(t, *want, s, "order %v", order)
	}
	require.NotNil(t, want)
	assert.Equal(t, model.BookReady, want.Status)
	assert.Equal(t, "data:cover", want.Cover.ImageData)
	assert.Equal(t, model.ItemError, want.Pages[1].Status)
}
