package services

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tidex/internal/shared"
)

const defaultRetryAfter = time.Second

// Credential supplies bearer tokens and can be told a token was rejected.
type Credential interface {
	Token() (*oauth2.Token, error)
	Invalidate()
}

// TransportConfig assembles the round-tripper chain shared by the source and destination clients.
type TransportConfig struct {
	Credential        Credential
	DefaultRetryAfter time.Duration
	RequestsPerSecond float64 // 0 disables the client-side cap
	Logger            *log.Logger
	Base              http.RoundTripper
}

// NewHTTPClient returns a client that authenticates, retries 429 responses, and optionally caps request rate.
//
// Layering (outermost first): [AuthTransport], [RetryTransport], [LimitTransport], Base.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = &LimitTransport{Base: base, Limiter: NewLimiter(cfg.RequestsPerSecond)}
	rt = NewRetryTransport(rt, cfg.DefaultRetryAfter, cfg.Logger)
	if cfg.Credential != nil {
		rt = &AuthTransport{Base: rt, Credential: cfg.Credential}
	}

	return &http.Client{Transport: rt}
}

// RetryTransport retries requests rejected with 429 Too Many Requests.
//
// The wait honours a Retry-After header (seconds or HTTP date) and otherwise uses DefaultRetryAfter.
// Retries are unbounded; only context cancellation stops them.
type RetryTransport struct {
	Base              http.RoundTripper
	DefaultRetryAfter time.Duration

	logger *log.Logger
}

// NewRetryTransport wraps base with 429 handling.
func NewRetryTransport(base http.RoundTripper, defaultWait time.Duration, logger *log.Logger) *RetryTransport {
	if defaultWait <= 0 {
		defaultWait = defaultRetryAfter
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &RetryTransport{Base: base, DefaultRetryAfter: defaultWait, logger: logger}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		r, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := base(t.Base).RoundTrip(r)
		if err != nil || resp.StatusCode != http.StatusTooManyRequests {
			return resp, err
		}

		wait := retryAfter(resp.Header, t.DefaultRetryAfter)
		drain(resp)

		t.logger.Warn("rate limited, retrying", "url", req.URL.Redacted(), "attempt", attempt, "wait", wait)
		if err := sleepContext(req.Context(), wait); err != nil {
			return nil, err
		}
	}
}

// AuthTransport sets the bearer token on every request.
//
// A 401 response invalidates the current token and the request is sent once more with a fresh one.
type AuthTransport struct {
	Base       http.RoundTripper
	Credential Credential
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.send(req, 1)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	drain(resp)
	t.Credential.Invalidate()
	return t.send(req, 2)
}

func (t *AuthTransport) send(req *http.Request, attempt int) (*http.Response, error) {
	token, err := t.Credential.Token()
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}

	r, err := rewind(req, attempt)
	if err != nil {
		return nil, err
	}
	if attempt == 1 {
		r = r.Clone(r.Context())
	}
	token.SetAuthHeader(r)

	return base(t.Base).RoundTrip(r)
}

// LimitTransport waits on a token-bucket limiter before each request. A nil Limiter disables it.
type LimitTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

func (t *LimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return base(t.Base).RoundTrip(req)
}

// NewLimiter returns a limiter allowing rps requests per second, or nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func base(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

// rewind returns a request safe to send for the given attempt, replaying the body on retries.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 {
		return req, nil
	}

	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry %s %s: request body is not replayable", req.Method, req.URL.Redacted())
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to replay request body: %w", err)
	}
	r.Body = body
	return r, nil
}

func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
