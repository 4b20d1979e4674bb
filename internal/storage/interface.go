package storage

import (
	"gemdesign-backend/internal/conversation"
)

// Storage 活跃会话的注册表，会话只存在于内存中
type Storage interface {
	Save(id string, c *conversation.Controller) error
	Get(id string) (*conversation.Controller, error)
	Delete(id string) error
	Count() int

	Close() error
}
