package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"gemdesign-backend/internal/config"
	"gemdesign-backend/internal/model"
	"gemdesign-backend/internal/service"
	"gemdesign-backend/internal/storage"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, prompt string, files []model.FileData) (*schema.StreamReader[*schema.Message], error) {
	return schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("echo: ", nil),
		schema.AssistantMessage(prompt, nil),
	}), nil
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{StreamTimeout: 5 * time.Second, HeartbeatInterval: time.Minute},
		Conversation: config.ConversationConfig{
			Locale:             "en",
			ErrorDisplay:       time.Hour,
			MaxAttachmentBytes: 16,
		},
	}
	store := storage.NewMemoryStorage(time.Minute, time.Minute)
	svc := service.NewChatService(cfg, echoGenerator{}, store)
	t.Cleanup(func() { svc.Close() })

	r := gin.New()
	RegisterRoutes(r.Group("/api"), NewChatHandler(svc, cfg.Server))
	return r
}

func do(r *gin.Engine, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createConversation(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/conversations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.ConversationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ConversationID)
	return resp.ConversationID
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) model.State {
	t.Helper()
	var state model.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	return state
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, files ...upload) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestConversationLifecycle(t *testing.T) {
	r := setupRouter(t)
	id := createConversation(t, r)

	w := do(r, http.MethodGet, "/api/conversations/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeState(t, w).History, 1)

	w = do(r, http.MethodDelete, "/api/conversations/"+id, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/conversations/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetInput(t *testing.T) {
	r := setupRouter(t)
	id := createConversation(t, r)

	w := do(r, http.MethodPut, "/api/conversations/"+id+"/input", []byte(`{"text":"draft"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "draft", decodeState(t, w).PendingInput)

	w = do(r, http.MethodPut, "/api/conversations/"+id+"/input", []byte(`{`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttachments(t *testing.T) {
	r := setupRouter(t)
	id := createConversation(t, r)
	path := "/api/conversations/" + id + "/attachments"

	body, ct := multipartBody(t,
		upload{name: "a.txt", contentType: "text/plain", data: []byte("hello")},
		upload{name: "b.pdf", data: []byte("%PDF-1.4\n")},
	)
	w := do(r, http.MethodPost, path, body, ct)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	state := decodeState(t, w)
	require.Len(t, state.PendingAttachments, 2)
	assert.Equal(t, "application/pdf", state.PendingAttachments[1].MimeType, "type detected from content")

	// 整批拒绝
	body, ct = multipartBody(t,
		upload{name: "c.txt", contentType: "text/plain", data: []byte("ok")},
		upload{name: "big.txt", contentType: "text/plain", data: bytes.Repeat([]byte("x"), 17)},
	)
	w = do(r, http.MethodPost, path, body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var rejected struct {
		Error string      `json:"error"`
		State model.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Len(t, rejected.State.PendingAttachments, 2)
	assert.NotEmpty(t, rejected.State.LastError)

	w = do(r, http.MethodDelete, path+"/0", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeState(t, w).PendingAttachments, 1)

	w = do(r, http.MethodDelete, path+"/5", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, path+"/x", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitStreamsSSE(t *testing.T) {
	r := setupRouter(t)
	id := createConversation(t, r)

	w := do(r, http.MethodPost, "/api/conversations/"+id+"/submit", []byte(`{"message":"hello"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	out := w.Body.String()
	assert.Contains(t, out, `"type":"processing_start"`)
	assert.Contains(t, out, `"type":"user_message"`)
	assert.Contains(t, out, `"type":"reply_started"`)
	assert.Contains(t, out, `"type":"completed"`)
	assert.Contains(t, out, `"content":"echo: hello"`)
	assert.Contains(t, out, `"type":"processing_complete"`)
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))

	assert.Less(t, strings.Index(out, `"type":"user_message"`), strings.Index(out, `"type":"completed"`))

	state := decodeState(t, do(r, http.MethodGet, "/api/conversations/"+id, nil, ""))
	require.Len(t, state.History, 3)
	assert.Equal(t, "echo: hello", state.History[2].Content)
}

func TestSubmitUsesStagedInputWhenBodyEmpty(t *testing.T) {
	r := setupRouter(t)
	id := createConversation(t, r)

	do(r, http.MethodPut, "/api/conversations/"+id+"/input", []byte(`{"text":"staged"}`), "application/json")
	w := do(r, http.MethodPost, "/api/conversations/"+id+"/submit", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"echo: staged"`)
}

func TestSubmitIgnoredAndNotFound(t *testing.T) {
	r := setupRouter(t)
	id := createConversation(t, r)

	w := do(r, http.MethodPost, "/api/conversations/"+id+"/submit", []byte(`{"message":"  "}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"ignored"`)
	assert.Len(t, decodeState(t, do(r, http.MethodGet, "/api/conversations/"+id, nil, "")).History, 1)

	w = do(r, http.MethodPost, "/api/conversations/missing/submit", []byte(`{"message":"hi"}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetAndRender(t *testing.T) {
	r := setupRouter(t)
	id := createConversation(t, r)

	do(r, http.MethodPost, "/api/conversations/"+id+"/submit", []byte(`{"message":"**bold**"}`), "application/json")

	w := do(r, http.MethodGet, "/api/conversations/"+id+"/messages/2/render", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `{"type":"strong","text":"bold"}`)

	w = do(r, http.MethodGet, "/api/conversations/"+id+"/messages/7/render", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/conversations/"+id+"/reset", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeState(t, w).History, 1)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "text/plain", detectMimeType("text/plain; charset=utf-8", []byte("x")))
	assert.Equal(t, "application/pdf", detectMimeType("", []byte("%PDF-1.7\n")))
	assert.Equal(t, "application/pdf", detectMimeType("application/octet-stream", []byte("%PDF-1.7\n")))
	assert.Equal(t, "text/plain", detectMimeType("", []byte("plain words")))
}
