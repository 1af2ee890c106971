package book

import (
	"strings"

	"colorcraft/internal/model"
)

// PlanFailedMessage 规划失败时展示给用户的固定提示
const PlanFailedMessage = "We couldn't plan the book. Please try a different theme."

// ItemEvent 一个图片任务的结果，按 generation + item id 合并到状态里
type ItemEvent struct {
	Generation uint64
	ItemID     int
	ImageData  string
	Err        error
}

// Reset 开始新一次生成：清空封面、内页和错误，generation加一
func Reset(s model.BookState, theme, childName string) model.BookState {
	next := model.NewBookState()
	next.Theme = strings.TrimSpace(theme)
	next.ChildName = strings.TrimSpace(childName)
	next.Status = model.BookPlanning
	next.Generation = s.Generation + 1
	return next
}

// ApplyPlan 根据规划生成 pending 状态的封面(id 0)和内页(id 1..k)
func ApplyPlan(s model.BookState, generation uint64, plan *model.Plan) (model.BookState, bool) {
	if s.Generation != generation || s.Status != model.BookPlanning {
		return s, false
	}
	next := s.Clone()
	next.Cover = model.Item{ID: model.CoverID, Description: plan.CoverDescription, Status: model.ItemPending}
	next.Pages = make([]model.Item, len(plan.PageDescriptions))
	for i, desc := range plan.PageDescriptions {
		next.Pages[i] = model.Item{ID: i + 1, Description: desc, Status: model.ItemPending}
	}
	next.Status = model.BookGenerating
	return next, true
}

// ApplyPlanFailure 规划失败，不创建任何条目
func ApplyPlanFailure(s model.BookState, generation uint64) (model.BookState, bool) {
	if s.Generation != generation || s.Status != model.BookPlanning {
		return s, false
	}
	next := s.Clone()
	next.Status = model.BookError
	next.Error = PlanFailedMessage
	return next, true
}

// ApplyItem 合并单个条目的结果，只修改对应 id 的条目。
// 过期 generation、未知 id、已终态的条目都不会被修改。
func ApplyItem(s model.BookState, ev ItemEvent) (model.BookState, bool) {
	if s.Generation != ev.Generation {
		return s, false
	}
	next := s.Clone()

	var item *model.Item
	if ev.ItemID == model.CoverID {
		item = &next.Cover
	} else {
		for i := range next.Pages {
			if next.Pages[i].ID == ev.ItemID {
				item = &next.Pages[i]
				break
			}
		}
	}
	if item == nil || item.Status.Terminal() {
		return s, false
	}

	if ev.Err != nil || ev.ImageData == "" {
		item.Status = model.ItemError
	} else {
		item.ImageData = ev.ImageData
		item.Status = model.ItemComplete
	}

	if next.Status == model.BookGenerating && next.AllTerminal() {
		next.Status = model.BookReady
	}
	return next, true
}
