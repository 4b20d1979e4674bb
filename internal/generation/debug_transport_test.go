package generation

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gemdesign-backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeBody(t *testing.T) {
	body := []byte(`{"model":"m","api_key":"sk-secret","messages":[]}`)
	out := sanitizeBody(body)
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, `"api_key": "[REDACTED]"`)

	long := sanitizeBody(bytes.Repeat([]byte("a"), maxLoggedBody*2))
	assert.True(t, strings.HasSuffix(long, "...(truncated)"))
	assert.Len(t, long, maxLoggedBody+len("...(truncated)"))
}

func TestDebugTransportRedactsAndPreservesBody(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	require.NoError(t, logger.Init("debug", "text", logger.Rotation{}))
	logger.SetOutput(&logs)

	client := &http.Client{Transport: NewDebugTransport("test", http.DefaultTransport, true)}
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"prompt":"hi"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sk-secret")
	req.Header.Set("X-Goog-Api-Key", "g-secret")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, `{"prompt":"hi"}`, <-received)
	assert.Contains(t, logs.String(), "[REDACTED]")
	assert.NotContains(t, logs.String(), "sk-secret")
	assert.NotContains(t, logs.String(), "g-secret")
	assert.Contains(t, logs.String(), `{\"prompt\":\"hi\"}`)
}

func TestIsSensitiveHeader(t *testing.T) {
	assert.True(t, isSensitiveHeader("Authorization"))
	assert.True(t, isSensitiveHeader("x-goog-api-key"))
	assert.False(t, isSensitiveHeader("Content-Type"))
}
