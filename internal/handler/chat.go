package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/conversation"
	"gemdesign-backend/internal/model"
	"gemdesign-backend/internal/service"
	"gemdesign-backend/internal/storage"
	"gemdesign-backend/internal/utils"
	"gemdesign-backend/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const (
	defaultStreamTimeout     = 25 * time.Minute
	defaultHeartbeatInterval = 30 * time.Second
)

type ChatHandler struct {
	chatService       *service.ChatService
	streamTimeout     time.Duration
	heartbeatInterval time.Duration
}

func NewChatHandler(chatService *service.ChatService, cfg config.ServerConfig) *ChatHandler {
	h := &ChatHandler{
		chatService:       chatService,
		streamTimeout:     cfg.StreamTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
	}
	if h.streamTimeout <= 0 {
		h.streamTimeout = defaultStreamTimeout
	}
	if h.heartbeatInterval <= 0 {
		h.heartbeatInterval = defaultHeartbeatInterval
	}
	return h
}

// Submit 提交暂存内容，以 SSE 推送本次生成的事件
func (h *ChatHandler) Submit(c *gin.Context) {
	id := c.Param("id")

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// 连接断开或超时只停止推送，生成继续进行
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.streamTimeout)
	defer cancel()

	respChan, errChan, err := h.chatService.StreamSubmit(ctx, id, req.Message)
	if err != nil && !errors.Is(err, service.ErrSubmissionIgnored) {
		h.fail(c, err)
		return
	}

	sseWriter := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)

	if errors.Is(err, service.ErrSubmissionIgnored) {
		sseWriter.WriteJSON("status", gin.H{
			"type":      "ignored",
			"message":   "nothing to submit or a reply is already being generated",
			"timestamp": time.Now().Unix(),
		})
		sseWriter.Close()
		return
	}

	heartbeatTicker := time.NewTicker(h.heartbeatInterval)
	defer heartbeatTicker.Stop()

	go func() {
		for {
			select {
			case <-heartbeatTicker.C:
				if err := sseWriter.WriteJSON("heartbeat", gin.H{
					"type":      "heartbeat",
					"timestamp": time.Now().Unix(),
				}); err != nil {
					logger.Warnf("心跳发送失败: %v", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	sseWriter.WriteJSON("status", gin.H{
		"type":      "processing_start",
		"timestamp": time.Now().Unix(),
	})

	for {
		select {
		case resp, ok := <-respChan:
			if !ok {
				select {
				case err := <-errChan:
					h.writeStreamError(sseWriter, err)
				default:
					sseWriter.WriteJSON("status", gin.H{
						"type":      "processing_complete",
						"timestamp": time.Now().Unix(),
					})
				}
				sseWriter.Close()
				return
			}

			event := "message"
			if resp.Type == model.EventFailed {
				event = "error"
			}
			if err := sseWriter.WriteJSON(event, resp); err != nil {
				logger.Errorf("Failed to write SSE: %v", err)
				return
			}

		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				sseWriter.WriteJSON("error", gin.H{
					"type":      "timeout",
					"error":     "stream timed out",
					"timestamp": time.Now().Unix(),
				})
			}
			sseWriter.Close()
			return
		}
	}
}

func (h *ChatHandler) writeStreamError(w *utils.SSEWriter, err error) {
	w.WriteJSON("error", gin.H{
		"type":      "service_error",
		"error":     err.Error(),
		"timestamp": time.Now().Unix(),
	})
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	resp, err := h.chatService.CreateConversation()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	state, err := h.chatService.GetConversation(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.chatService.DeleteConversation(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}

func (h *ChatHandler) SetInput(c *gin.Context) {
	var req model.InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.chatService.SetInput(c.Param("id"), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// SelectAttachments 一次上传即一批，任一文件不合法则整批拒绝
func (h *ChatHandler) SelectAttachments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := readUploads(form.File["files"], h.chatService.Limits().MaxBytes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.chatService.SelectAttachments(c.Param("id"), batch)
	if err != nil {
		h.failWithState(c, err, state)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *ChatHandler) RemoveAttachment(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attachment index"})
		return
	}

	state, err := h.chatService.RemoveAttachment(c.Param("id"), index)
	if err != nil {
		h.failWithState(c, err, state)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *ChatHandler) Reset(c *gin.Context) {
	state, err := h.chatService.Reset(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *ChatHandler) RenderMessage(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message index"})
		return
	}

	blocks, err := h.chatService.RenderMessage(c.Param("id"), index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": c.Param("id"),
		"index":           index,
		"blocks":          blocks,
	})
}

func (h *ChatHandler) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *ChatHandler) failWithState(c *gin.Context, err error, state model.State) {
	status := statusFor(err)
	if status == http.StatusNotFound {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "state": state})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrConversationNotFound), errors.Is(err, service.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, conversation.ErrUnsupportedType),
		errors.Is(err, conversation.ErrFileTooLarge),
		errors.Is(err, conversation.ErrIndexOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// readUploads 最多读取 maxBytes+1 字节，超出部分由大小校验拒绝
func readUploads(files []*multipart.FileHeader, maxBytes int64) ([]model.Attachment, error) {
	batch := make([]model.Attachment, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}

		batch = append(batch, model.Attachment{
			Name:     fh.Filename,
			Content:  data,
			MimeType: detectMimeType(fh.Header.Get("Content-Type"), data),
		})
	}
	return batch, nil
}

// detectMimeType 客户端未声明类型时按内容识别
func detectMimeType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return mediaType
	}
	detected, _, err := mime.ParseMediaType(mimetype.Detect(data).String())
	if err != nil {
		return "application/octet-stream"
	}
	return detected
}

// RegisterRoutes 挂载会话相关路由
func RegisterRoutes(api *gin.RouterGroup, h *ChatHandler) {
	conversations := api.Group("/conversations")
	{
		conversations.POST("", h.CreateConversation)
		conversations.GET("/:id", h.GetConversation)
		conversations.DELETE("/:id", h.DeleteConversation)
		conversations.PUT("/:id/input", h.SetInput)
		conversations.POST("/:id/attachments", h.SelectAttachments)
		conversations.DELETE("/:id/attachments/:index", h.RemoveAttachment)
		conversations.POST("/:id/submit", h.Submit)
		conversations.POST("/:id/reset", h.Reset)
		conversations.GET("/:id/messages/:index/render", h.RenderMessage)
	}
}
