package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/inkwell/internal/service"
	"github.com/rs/zerolog"
)

// TimeoutHandler 为每个请求设置 d 的处理预算。
// 预算耗尽时立即返回 408，不等待仍在运行的处理器，其后续写入全部丢弃；
// 请求 ctx 同时带有截止时间，存储调用会随之取消。
func TimeoutHandler(next http.Handler, d time.Duration, log zerolog.Logger) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()

		tw := &timeoutWriter{header: make(http.Header)}
		done := make(chan struct{})
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			next.ServeHTTP(tw, r.WithContext(ctx))
			close(done)
		}()

		select {
		case p := <-panicked:
			panic(p)
		case <-done:
			tw.flushTo(w)
		case <-ctx.Done():
			tw.abandon()
			log.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("budget", d).
				Msg("request timed out")
			writeTimeout(w)
		}
	})
}

func writeTimeout(w http.ResponseWriter) {
	status, body := classify(service.ErrTimeout)
	payload, _ := json.Marshal(body)

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// timeoutWriter 缓存处理器的响应，超时后拒绝写入
type timeoutWriter struct {
	mu        sync.Mutex
	header    http.Header
	body      bytes.Buffer
	code      int
	abandoned bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.abandoned {
		return 0, http.ErrHandlerTimeout
	}
	if tw.code == 0 {
		tw.code = http.StatusOK
	}
	return tw.body.Write(p)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.abandoned || tw.code != 0 {
		return
	}
	tw.code = code
}

// Flush is a no-op; the response is sent as a whole once the handler returns.
func (tw *timeoutWriter) Flush() {}

func (tw *timeoutWriter) abandon() {
	tw.mu.Lock()
	tw.abandoned = true
	tw.mu.Unlock()
}

func (tw *timeoutWriter) flushTo(w http.ResponseWriter) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	dst := w.Header()
	for key, values := range tw.header {
		dst[key] = values
	}
	if tw.code == 0 {
		tw.code = http.StatusOK
	}
	w.WriteHeader(tw.code)
	if tw.body.Len() > 0 {
		_, _ = w.Write(tw.body.Bytes())
	}
}
