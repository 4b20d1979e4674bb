package generation

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"

	"gemdesign-backend/pkg/logger"
)

// 请求体中可能包含整份 base64 文件，只记录前面一段
const maxLoggedBody = 512

var sensitiveFieldPattern = regexp.MustCompile(`"(api_key|apiKey|password|secret|token)"\s*:\s*"[^"]*"`)

// DebugTransport 记录发往模型服务的请求，凭证相关的请求头与字段会被隐去
type DebugTransport struct {
	base         http.RoundTripper
	debugEnabled bool
	name         string
}

// NewDebugTransport 创建新的调试传输层
func NewDebugTransport(name string, base http.RoundTripper, debugEnabled bool) *DebugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DebugTransport{
		base:         base,
		debugEnabled: debugEnabled,
		name:         name,
	}
}

// RoundTrip 实现http.RoundTripper接口
func (t *DebugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.debugEnabled && req.Method == http.MethodPost {
		t.logRequest(req)
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil && t.debugEnabled {
		logger.Errorf("[%s debug] request failed: %v", t.name, err)
	}
	return resp, err
}

func (t *DebugTransport) logRequest(req *http.Request) {
	logger.Debugf("[%s debug] %s %s", t.name, req.Method, req.URL.String())

	for name, values := range req.Header {
		if isSensitiveHeader(name) {
			logger.Debugf("[%s debug]   %s: [REDACTED]", t.name, name)
		} else {
			logger.Debugf("[%s debug]   %s: %s", t.name, name, strings.Join(values, ", "))
		}
	}

	if req.Body == nil {
		return
	}
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		logger.Errorf("[%s debug] failed to read request body: %v", t.name, err)
		return
	}
	// 恢复请求体，以免影响实际请求
	req.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	logger.Debugf("[%s debug] body (%d bytes): %s", t.name, len(bodyBytes), sanitizeBody(bodyBytes))
}

func sanitizeBody(body []byte) string {
	s := sensitiveFieldPattern.ReplaceAllString(string(body), `"$1": "[REDACTED]"`)
	if len(s) > maxLoggedBody {
		s = s[:maxLoggedBody] + "...(truncated)"
	}
	return s
}

func isSensitiveHeader(name string) bool {
	switch strings.ToLower(name) {
	case "authorization", "x-api-key", "x-goog-api-key", "x-auth-token", "cookie":
		return true
	}
	return false
}
