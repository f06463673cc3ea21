package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/githaohao/xzxz-lm-chat/internal/fieldcase"
)

// TransformOption tunes the field transform for one route or group.
type TransformOption func(*transformConfig)

type transformConfig struct {
	skipRequest  bool
	skipResponse bool
	include      []string
	exclude      []string
}

// WithoutRequest leaves the request body untouched.
func WithoutRequest() TransformOption {
	return func(c *transformConfig) { c.skipRequest = true }
}

// WithoutResponse leaves the response body untouched.
func WithoutResponse() TransformOption {
	return func(c *transformConfig) { c.skipResponse = true }
}

// IncludeFields transforms only the named fields; everything else keeps its
// key. Mutually exclusive with ExcludeFields; include wins when both are set.
func IncludeFields(fields ...string) TransformOption {
	return func(c *transformConfig) { c.include = fields }
}

// ExcludeFields transforms everything except the named fields, which pass
// through at their original key.
func ExcludeFields(fields ...string) TransformOption {
	return func(c *transformConfig) { c.exclude = fields }
}

// Transform rewrites JSON request bodies from camelCase to snake_case before
// the handler runs and response bodies from snake_case to camelCase after.
// Non-JSON bodies, headers and the status code are untouched. Malformed
// request JSON passes through so binding reports the usual 400.
func Transform(opts ...TransformOption) gin.HandlerFunc {
	cfg := transformConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		if !cfg.skipRequest && hasJSONBody(c.Request) {
			rewriteRequestBody(c, cfg)
		}

		if cfg.skipResponse {
			c.Next()
			return
		}

		buf := &bufferingWriter{ResponseWriter: c.Writer}
		c.Writer = buf
		c.Next()
		c.Writer = buf.ResponseWriter

		writeTransformed(c, cfg, buf.body.Bytes())
	}
}

func hasJSONBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}

func rewriteRequestBody(c *gin.Context, cfg transformConfig) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return
	}
	_ = c.Request.Body.Close()

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		return
	}
	converted := fieldcase.MapKeysFiltered(payload, fieldcase.CamelToSnake, cfg.include, cfg.exclude)
	out, err := json.Marshal(converted)
	if err != nil {
		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(out))
	c.Request.ContentLength = int64(len(out))
}

func writeTransformed(c *gin.Context, cfg transformConfig, body []byte) {
	if len(body) == 0 {
		return
	}
	ct := c.Writer.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		_, _ = c.Writer.Write(body)
		return
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		_, _ = c.Writer.Write(body)
		return
	}
	converted := fieldcase.MapKeysFiltered(payload, fieldcase.SnakeToCamel, cfg.include, cfg.exclude)
	out, err := json.Marshal(converted)
	if err != nil {
		_, _ = c.Writer.Write(body)
		return
	}
	c.Writer.Header().Del("Content-Length")
	_, _ = c.Writer.Write(out)
}

// bufferingWriter captures the handler's body so it can be rewritten before
// reaching the client. Header writes stay deferred until the final Write.
type bufferingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bufferingWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferingWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// WriteHeaderNow is deferred so the status line goes out with the rewritten
// body, not before it.
func (w *bufferingWriter) WriteHeaderNow() {}
