package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPushBatchSize = 100
	defaultPushInterval  = 5 * time.Second
)

// PushHandler is a slog.Handler that batches records and ships them to a
// Loki-compatible push endpoint. Handlers derived through WithAttrs and
// WithGroup share one batch and one flusher.
type PushHandler struct {
	sink   *pushSink
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

type pushSink struct {
	url       string
	labels    map[string]string
	client    *http.Client
	batchSize int
	interval  time.Duration

	mu    sync.Mutex
	batch [][2]string

	stop    chan struct{}
	done    chan struct{}
	closeMu sync.Once
}

type pushStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type pushRequest struct {
	Streams []pushStream `json:"streams"`
}

// PushOption configures a PushHandler.
type PushOption func(*PushHandler)

// WithPushLabels adds stream labels.
func WithPushLabels(labels map[string]string) PushOption {
	return func(h *PushHandler) {
		for k, v := range labels {
			h.sink.labels[k] = v
		}
	}
}

// WithPushLevel sets the minimum level shipped.
func WithPushLevel(level slog.Level) PushOption {
	return func(h *PushHandler) {
		h.level = level
	}
}

// WithPushBatchSize flushes once this many records are buffered.
func WithPushBatchSize(n int) PushOption {
	return func(h *PushHandler) {
		if n > 0 {
			h.sink.batchSize = n
		}
	}
}

// WithPushInterval sets the periodic flush interval.
func WithPushInterval(d time.Duration) PushOption {
	return func(h *PushHandler) {
		if d > 0 {
			h.sink.interval = d
		}
	}
}

// WithPushClient overrides the HTTP client used to ship batches.
func WithPushClient(c *http.Client) PushOption {
	return func(h *PushHandler) {
		if c != nil {
			h.sink.client = c
		}
	}
}

// NewPushHandler creates a handler shipping to url, for example
// "http://localhost:3100/loki/api/v1/push". Close stops the periodic flush.
func NewPushHandler(url string, opts ...PushOption) *PushHandler {
	h := &PushHandler{
		sink: &pushSink{
			url:       url,
			labels:    map[string]string{"job": "mockserver"},
			client:    &http.Client{Timeout: 5 * time.Second},
			batchSize: defaultPushBatchSize,
			interval:  defaultPushInterval,
			stop:      make(chan struct{}),
			done:      make(chan struct{}),
		},
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.sink.loop()
	return h
}

func (s *pushSink) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.flush()
		case <-s.stop:
			return
		}
	}
}

// Enabled implements slog.Handler.
func (h *PushHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *PushHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})
	line, err := json.Marshal(fields)
	if err != nil {
		line = []byte(strconv.Quote(r.Message))
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	s := h.sink
	s.mu.Lock()
	s.batch = append(s.batch, [2]string{strconv.FormatInt(ts.UnixNano(), 10), string(line)})
	full := len(s.batch) >= s.batchSize
	s.mu.Unlock()

	if full {
		go func() { _ = s.flush() }()
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *PushHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

// WithGroup implements slog.Handler. Group names prefix attribute keys.
func (h *PushHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// Flush ships all buffered records.
func (h *PushHandler) Flush() error {
	return h.sink.flush()
}

// Close stops the periodic flush and ships what remains.
func (h *PushHandler) Close() error {
	s := h.sink
	s.closeMu.Do(func() {
		close(s.stop)
		<-s.done
	})
	return s.flush()
}

func (s *pushSink) flush() error {
	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	body, err := json.Marshal(pushRequest{
		Streams: []pushStream{{Stream: s.labels, Values: batch}},
	})
	if err != nil {
		return fmt.Errorf("marshal log push: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create log push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send log push: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("log push returned status %d", resp.StatusCode)
	}
	return nil
}

// Tee returns a handler writing every record to all handlers that accept
// its level. A failing handler does not stop the others.
func Tee(handlers ...slog.Handler) slog.Handler {
	return teeHandler(handlers)
}

type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []string
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("log handlers failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
