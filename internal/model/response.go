package model

type ConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	State          State  `json:"state"`
}

// StreamResponse SSE 中每个事件的数据
type StreamResponse struct {
	ConversationID string    `json:"conversation_id"`
	RequestID      uint64    `json:"request_id"`
	Type           EventType `json:"type"`
	Index          int       `json:"index"`
	MessageID      string    `json:"message_id,omitempty"`
	Role           Role      `json:"role,omitempty"`
	Content        string    `json:"content,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      int64     `json:"timestamp"`
}
