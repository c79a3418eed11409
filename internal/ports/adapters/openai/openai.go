package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/vidstamp/internal/metrics"
	"github.com/forPelevin/vidstamp/internal/ports"
)

const (
	DefaultModel          = "gpt-4o"
	DefaultMaxTokens      = 1000
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
	DefaultRequestTimeout = 90 * time.Second
	DefaultMaxInFlight    = 2

	maxRetryDelay = 30 * time.Second
)

var (
	ErrMalformedReply = errors.New("malformed model reply")
	ErrNoImages       = errors.New("no images to read")
)

const prompt = `You read timestamps burned into video frames. You are given a series of frames from one video; return the timestamp visible in each frame, in order.

The timestamp format is "YYYY-MM-DD HH:MM:SS".

Answer with JSON only, exactly in this shape, one entry per frame:
{
    "timestamps": [
        "YYYY-MM-DD HH:MM:SS",
        "YYYY-MM-DD HH:MM:SS",
        ...
    ]
}

Only report timestamps you can read clearly. If you cannot read the timestamp of a frame, put the word "INVALID" in its place.`

type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	MaxTokens      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RequestTimeout time.Duration
	// MaxInFlight bounds concurrent requests across all callers.
	MaxInFlight int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
	log     *zap.Logger

	maxTokens      int
	maxRetries     int
	retryBaseDelay time.Duration
	requestTimeout time.Duration
	sem            *semaphore.Weighted

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Adapter {
	a := &Adapter{
		key:            cfg.APIKey,
		model:          cfg.Model,
		baseURL:        normalizeBaseURL(cfg.BaseURL),
		client:         cfg.HTTPClient,
		log:            cfg.Logger,
		maxTokens:      cfg.MaxTokens,
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
		requestTimeout: cfg.RequestTimeout,
		sleep:          sleepCtx,
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: 5 * time.Minute}
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.maxTokens <= 0 {
		a.maxTokens = DefaultMaxTokens
	}
	if a.maxRetries < 0 {
		a.maxRetries = 0
	}
	if a.retryBaseDelay <= 0 {
		a.retryBaseDelay = DefaultRetryBaseDelay
	}
	if a.requestTimeout <= 0 {
		a.requestTimeout = DefaultRequestTimeout
	}
	inFlight := cfg.MaxInFlight
	if inFlight <= 0 {
		inFlight = DefaultMaxInFlight
	}
	a.sem = semaphore.NewWeighted(int64(inFlight))
	return a
}

// ReadTimestamps sends the JPEG images to the model and returns its raw
// answer per image.
func (a *Adapter) ReadTimestamps(ctx context.Context, images [][]byte) ([]string, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	body, err := json.Marshal(a.buildPayload(images))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)

	var content string
	for attempt := 0; ; attempt++ {
		content, err = a.complete(ctx, body)
		if err == nil {
			metrics.ModelRequests.WithLabelValues("ok").Inc()
			break
		}
		if ctx.Err() != nil {
			metrics.ModelRequests.WithLabelValues("canceled").Inc()
			return nil, err
		}
		if !retryable(err) || attempt >= a.maxRetries {
			metrics.ModelRequests.WithLabelValues("error").Inc()
			return nil, err
		}

		delay := a.backoff(attempt+1, err)
		metrics.ModelRetries.Inc()
		a.log.Warn("model request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := a.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return parseTimestamps(content)
}

func (a *Adapter) buildPayload(images [][]byte) map[string]any {
	parts := make([]map[string]any, 0, len(images)+1)
	parts = append(parts, map[string]any{"type": "text", "text": prompt})
	for _, img := range images {
		parts = append(parts, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	return map[string]any{
		"model": a.model,
		"messages": []map[string]any{
			{"role": "user", "content": parts},
		},
		"max_tokens":      a.maxTokens,
		"response_format": map[string]any{"type": "json_object"},
	}
}

type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("model api status %d: %s", e.code, e.body)
}

// complete performs one request and returns the assistant message text.
func (a *Adapter) complete(ctx context.Context, body []byte) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	url := chatCompletionsURL(a.baseURL)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("model api timeout after %s (model=%s)", a.requestTimeout, a.model)
		}
		return "", fmt.Errorf("model api request: %s", redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return "", &statusError{code: resp.StatusCode, body: "read body failed: " + readErr.Error()}
		}
		return "", &statusError{
			code:       resp.StatusCode,
			body:       truncate(redactSecrets(string(rb), a.key), 400),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrMalformedReply, err)
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedReply)
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

func retryable(err error) bool {
	if errors.Is(err, ErrMalformedReply) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// backoff is base*2^(attempt-1) capped at maxRetryDelay, or the server's
// Retry-After when it asks for longer.
func (a *Adapter) backoff(attempt int, err error) time.Duration {
	d := maxRetryDelay
	if attempt <= 16 {
		d = a.retryBaseDelay << (attempt - 1)
	}
	if d <= 0 || d > maxRetryDelay {
		d = maxRetryDelay
	}
	var se *statusError
	if errors.As(err, &se) && se.retryAfter > d {
		d = min(se.retryAfter, maxRetryDelay)
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	sec, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func parseTimestamps(content string) ([]string, error) {
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if !gjson.Valid(clean) {
		return nil, fmt.Errorf("%w: invalid json %q", ErrMalformedReply, truncate(clean, 200))
	}
	arr := gjson.Get(clean, "timestamps")
	if !arr.IsArray() {
		return nil, fmt.Errorf("%w: missing timestamps array in %q", ErrMalformedReply, truncate(clean, 200))
	}
	out := make([]string, 0, 3)
	arr.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out, nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: empty content", ErrMalformedReply)
		}
		return s, nil
	default:
		return "", fmt.Errorf("%w: unexpected content type %T", ErrMalformedReply, v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

var _ ports.TimestampReader = (*Adapter)(nil)
