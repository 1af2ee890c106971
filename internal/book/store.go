package book

import (
	"sync"

	"colorcraft/internal/model"
)

// Store 持有一本书的共享状态。所有修改都在锁内基于最新值完成，
// 并发完成的任务不会相互覆盖。
type Store struct {
	mu     sync.RWMutex
	state  model.BookState
	nextID int
	subs   map[int]chan model.BookState
}

func NewStore() *Store {
	return &Store{
		state: model.NewBookState(),
		subs:  make(map[int]chan model.BookState),
	}
}

// Snapshot 返回当前状态的拷贝
func (s *Store) Snapshot() model.BookState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Update 在锁内执行 fn(当前状态)，fn 返回 false 时不修改状态也不通知订阅者
func (s *Store) Update(fn func(model.BookState) (model.BookState, bool)) (model.BookState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := fn(s.state)
	if !changed {
		return s.state.Clone(), false
	}
	s.state = next
	s.broadcast(next)
	return next.Clone(), true
}

// Subscribe 订阅状态变化。每个订阅者只保留最新一个快照，慢消费者会跳过中间状态。
func (s *Store) Subscribe() (<-chan model.BookState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan model.BookState, 1)
	ch <- s.state.Clone()
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// broadcast 调用方持有写锁
func (s *Store) broadcast(state model.BookState) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state.Clone()
	}
}
