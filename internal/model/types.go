package model

import "time"

// ItemStatus 单页(或封面)的生成状态
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemGenerating ItemStatus = "generating"
	ItemComplete   ItemStatus = "complete"
	ItemError      ItemStatus = "error"
)

// Terminal 是否已到达终态，终态之后不再变化
func (s ItemStatus) Terminal() bool {
	return s == ItemComplete || s == ItemError
}

// BookStatus 整本书的生成状态
type BookStatus string

const (
	BookIdle       BookStatus = "idle"
	BookPlanning   BookStatus = "planning"
	BookGenerating BookStatus = "generating"
	BookReady      BookStatus = "ready"
	BookError      BookStatus = "error"
)

// CoverID 封面固定使用0，内页从1开始编号
const CoverID = 0

// Item 封面或内页
type Item struct {
	ID          int        `json:"id"`
	Description string     `json:"description"`
	ImageData   string     `json:"imageData,omitempty"` // data URI
	Status      ItemStatus `json:"status"`
}

// BookState 一次涂色书生成的完整状态
type BookState struct {
	Theme      string     `json:"theme"`
	ChildName  string     `json:"childName"`
	Status     BookStatus `json:"status"`
	Cover      Item       `json:"cover"`
	Pages      []Item     `json:"pages"`
	Error      string     `json:"error,omitempty"`
	Generation uint64     `json:"generation"`
}

// NewBookState 返回空闲状态
func NewBookState() BookState {
	return BookState{
		Status: BookIdle,
		Pages:  []Item{},
		Cover:  Item{ID: CoverID, Status: ItemPending},
	}
}

// Clone 深拷贝，pages切片不与原状态共享
func (b BookState) Clone() BookState {
	out := b
	out.Pages = make([]Item, len(b.Pages))
	copy(out.Pages, b.Pages)
	return out
}

// AllTerminal 封面与所有内页均已完成或失败
func (b BookState) AllTerminal() bool {
	if !b.Cover.Status.Terminal() {
		return false
	}
	for _, p := range b.Pages {
		if !p.Status.Terminal() {
			return false
		}
	}
	return true
}

// Plan 规划结果：一个封面描述 + 若干内页描述
type Plan struct {
	CoverDescription string   `json:"coverDescription"`
	PageDescriptions []string `json:"pageDescriptions"`
}

// Role 聊天消息角色
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage 聊天记录中的一条消息
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
