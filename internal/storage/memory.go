package storage

import (
	"time"

	"gemdesign-backend/internal/conversation"
	"gemdesign-backend/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// MemoryStorage 过期时间滑动刷新：每次 Get 都会重新计时。
// 过期或删除的会话会被关闭，进行中的生成随之取消。
type MemoryStorage struct {
	cache *gocache.Cache
	ttl   time.Duration
}

func NewMemoryStorage(ttl, cleanupInterval time.Duration) *MemoryStorage {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	c := gocache.New(ttl, cleanupInterval)
	c.OnEvicted(func(id string, v interface{}) {
		if ctrl, ok := v.(*conversation.Controller); ok {
			ctrl.Close()
			logger.Debugf("conversation %s released", id)
		}
	})

	return &MemoryStorage{cache: c, ttl: ttl}
}

func (m *MemoryStorage) Save(id string, c *conversation.Controller) error {
	if id == "" || c == nil {
		return ErrInvalidData
	}
	m.cache.Set(id, c, m.ttl)
	return nil
}

func (m *MemoryStorage) Get(id string) (*conversation.Controller, error) {
	v, found := m.cache.Get(id)
	if !found {
		return nil, ErrConversationNotFound
	}
	ctrl, ok := v.(*conversation.Controller)
	if !ok {
		return nil, ErrInvalidData
	}
	// 重新设置即续期，Set 不会触发 OnEvicted
	m.cache.Set(id, ctrl, m.ttl)
	return ctrl, nil
}

func (m *MemoryStorage) Delete(id string) error {
	if _, found := m.cache.Get(id); !found {
		return ErrConversationNotFound
	}
	m.cache.Delete(id)
	return nil
}

func (m *MemoryStorage) Count() int {
	return m.cache.ItemCount()
}

// Close 关闭所有会话
func (m *MemoryStorage) Close() error {
	for id := range m.cache.Items() {
		m.cache.Delete(id)
	}
	return nil
}
