package liveness

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultConcurrency = 10

type Config struct {
	HeadTimeout time.Duration
	GetTimeout  time.Duration
	// Delay is the minimum spacing between two probes started by the same checker.
	Delay     time.Duration
	UserAgent string
	Transport http.RoundTripper
}

type Result struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

type Target struct {
	URL   string
	Index int
}

type Outcome struct {
	Target Target
	Result Result
}

type Checker struct {
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
}

func NewChecker(cfg Config) *Checker {
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = 5 * time.Second
	}
	if cfg.GetTimeout <= 0 {
		cfg.GetTimeout = 8 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	c := &Checker{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	if cfg.Delay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	return c
}

// IsBroken reports whether a liveness status means the target does not exist.
// Unreachable (0) counts the same as 404.
func IsBroken(status int) bool {
	return status == 0 || status == http.StatusNotFound
}

// Check probes rawURL with HEAD and falls back to GET when HEAD fails.
// Status 0 means neither probe got a response.
func (c *Checker) Check(ctx context.Context, rawURL string) Result {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}
		}
	}
	head, err := c.probe(ctx, http.MethodHead, rawURL, c.cfg.HeadTimeout)
	if err == nil && head.Status != http.StatusMethodNotAllowed && head.Status != http.StatusNotImplemented {
		return head
	}
	if err != nil {
		slog.Debug("head probe failed, trying get.", slog.String("url", rawURL), slog.String("err", err.Error()))
	}
	get, getErr := c.probe(ctx, http.MethodGet, rawURL, c.cfg.GetTimeout)
	if getErr == nil {
		return get
	}
	slog.Debug("get probe failed.", slog.String("url", rawURL), slog.String("err", getErr.Error()))
	if err == nil {
		return head
	}
	return Result{}
}

func (c *Checker) probe(ctx context.Context, method, rawURL string, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return Result{}, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if method == http.MethodGet {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	}

	res := Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.StatusCode/100 == 3 {
		if loc, err := resp.Location(); err == nil {
			res.RedirectURL = loc.String()
		}
	}
	return res, nil
}

// CheckAll checks targets with at most concurrency probes in flight. Outcomes arrive in
// completion order and the channel is closed once every worker has stopped.
func (c *Checker) CheckAll(ctx context.Context, targets []Target, concurrency int) <-chan Outcome {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(targets) {
		concurrency = len(targets)
	}
	queue := make(chan Target, len(targets))
	for _, t := range targets {
		queue <- t
	}
	close(queue)

	out := make(chan Outcome)
	wg := &sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				if ctx.Err() != nil {
					return
				}
				r := c.Check(ctx, t.URL)
				select {
				case out <- Outcome{Target: t, Result: r}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
