package conversation

import (
	"sync"

	"gemdesign-backend/internal/model"
)

// Subscription 按发生顺序、不丢失地投递控制器事件。
// 控制器只往队列追加，慢的订阅者不会阻塞会话。
type Subscription struct {
	ch     chan model.Event
	mu     sync.Mutex
	queue  []model.Event
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
	remove func(*Subscription)
}

func newSubscription(remove func(*Subscription)) *Subscription {
	s := &Subscription{
		ch:     make(chan model.Event),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		remove: remove,
	}
	go s.run()
	return s
}

// Events 订阅关闭后通道会被关闭
func (s *Subscription) Events() <-chan model.Event {
	return s.ch
}

// Close 可重复调用
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.remove != nil {
			s.remove(s)
		}
	})
}

// stop 由控制器在持有锁时调用，不回调 remove
func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) push(ev model.Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		if len(batch) == 0 {
			select {
			case <-s.notify:
				continue
			case <-s.done:
				return
			}
		}

		for _, ev := range batch {
			select {
			case s.ch <- ev:
			case <-s.done:
				return
			}
		}
	}
}
