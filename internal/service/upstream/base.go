package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"TriggerDesk/internal/domain/models"
	svccache "TriggerDesk/internal/service/cache"
	svcmetrics "TriggerDesk/internal/service/metrics"
	"TriggerDesk/internal/service/ratelimit"
	xhttp "TriggerDesk/pkg/http"
)

// Base is the shared foundation of the upstream JSON adapters.
// It centralizes client construction, retry, rate limiting and response caching.
type Base struct {
	name     string
	baseURL  string
	client   *xhttp.Client
	headers  map[string]string
	attempts int
	limiter  *ratelimit.Limiter
	rps      float64
	cache    svccache.BytesCache
	cacheTTL time.Duration
	metrics  *svcmetrics.Upstream
}

const userAgent = "triggerdesk/1.0"

type Option func(*Base)

func WithTimeout(d time.Duration) Option {
	return func(b *Base) {
		if d > 0 {
			b.client = xhttp.NewClient(xhttp.WithTimeout(d), xhttp.WithUserAgent(userAgent))
		}
	}
}

func WithAttempts(n int) Option {
	return func(b *Base) { b.attempts = n }
}

func WithHeader(k, v string) Option {
	return func(b *Base) { b.headers[k] = v }
}

// WithRateLimit caps outbound requests per second, shared by every adapter using l.
func WithRateLimit(l *ratelimit.Limiter, rps float64) Option {
	return func(b *Base) {
		b.limiter = l
		b.rps = rps
	}
}

// WithCache stores successful GET bodies for ttl.
func WithCache(c svccache.BytesCache, ttl time.Duration) Option {
	return func(b *Base) {
		b.cache = c
		b.cacheTTL = ttl
	}
}

func WithMetrics(m *svcmetrics.Upstream) Option {
	return func(b *Base) { b.metrics = m }
}

func NewBase(name, baseURL string, opts ...Option) *Base {
	b := &Base{
		name:     name,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(8*time.Second), xhttp.WithUserAgent(userAgent)),
		headers:  map[string]string{"Accept": "application/json"},
		attempts: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Name() string { return b.name }

// Configured reports whether a base URL was supplied.
func (b *Base) Configured() bool { return b != nil && b.baseURL != "" }

func cacheKey(name, path string, q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteString(path)
	for _, k := range keys {
		sb.WriteString("|" + k + "=" + strings.Join(q[k], ","))
	}
	return sb.String()
}

// GetRaw fetches path under baseURL and returns the raw JSON body.
func (b *Base) GetRaw(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if !b.Configured() {
		return nil, fmt.Errorf("%s: base url not configured: %w", b.name, models.ErrUpstreamUnavailable)
	}
	key := cacheKey(b.name, path, q)
	if b.cache != nil {
		if body, ok, err := b.cache.GetBytes(ctx, key); err == nil && ok {
			return body, nil
		}
	}
	var body []byte
	if err := b.withRetry(ctx, path, func() error {
		return b.client.Do(ctx, xhttp.Request{
			Method: http.MethodGet,
			URL:    b.baseURL + path,
			Header: b.headers,
			Query:  q,
		}, &body)
	}); err != nil {
		return nil, err
	}
	if b.cache != nil && b.cacheTTL > 0 {
		_ = b.cache.SetBytes(ctx, key, body, b.cacheTTL)
	}
	return body, nil
}

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *Base) PostJSON(ctx context.Context, path string, payload, dest any) error {
	if !b.Configured() {
		return fmt.Errorf("%s: base url not configured: %w", b.name, models.ErrUpstreamUnavailable)
	}
	return b.withRetry(ctx, path, func() error {
		return b.client.Do(ctx, xhttp.Request{
			Method: http.MethodPost,
			URL:    b.baseURL + path,
			Header: b.headers,
			Body:   payload,
		}, dest)
	})
}

func (b *Base) withRetry(ctx context.Context, path string, call func() error) error {
	attempts := b.attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if b.limiter != nil && b.rps > 0 {
			if werr := b.limiter.Wait(ctx, b.name, b.rps, b.rps); werr != nil {
				return werr
			}
		}
		started := time.Now()
		err = call()
		b.metrics.Observe(b.name, started, err)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || i == attempts {
			break
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			break
		}
		// linear backoff
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s %s: %v: %w", b.name, path, err, models.ErrUpstreamUnavailable)
}
