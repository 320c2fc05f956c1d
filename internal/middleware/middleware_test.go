package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_RecordsStatusAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := chimiddleware.RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("hello"))
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/users/register", nil))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=409")
	assert.Contains(t, out, "bytes=5")
	assert.Contains(t, out, "path=/api/v1/users/register")
	assert.NotContains(t, out, `request_id=""`)
}

func TestLogger_DefaultStatusIs200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "status=200")
}

func TestLimitBody(t *testing.T) {
	read := func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
	h := LimitBody(16)(http.HandlerFunc(read))

	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{"small json", "application/json", `{"a":1}`, http.StatusNoContent},
		{"large json", "application/json; charset=utf-8", strings.Repeat("x", 17), http.StatusRequestEntityTooLarge},
		{"small form", "application/x-www-form-urlencoded", "a=1", http.StatusNoContent},
		{"large form", "application/x-www-form-urlencoded", "a=" + strings.Repeat("x", 16), http.StatusRequestEntityTooLarge},
		{"large multipart untouched", "multipart/form-data; boundary=x", strings.Repeat("x", 64), http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)
			require.Equal(t, tt.want, rr.Code)
		})
	}
}
