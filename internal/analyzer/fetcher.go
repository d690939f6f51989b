package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/IliaW/site-auditor/internal/model"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/gocolly/colly"
)

// Page is a fetched document. Status is 0 when no response was received.
type Page struct {
	URL    string
	Status int
	Body   []byte
}

type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

func NewFetcher(mechanism model.CrawlMechanism, transport http.RoundTripper, userAgent string) (Fetcher, error) {
	switch mechanism {
	case model.Curl:
		return &CollyFetcher{Transport: transport, UserAgent: userAgent}, nil
	case model.HeadlessBrowser:
		return &BrowserFetcher{UserAgent: userAgent}, nil
	default:
		return nil, errors.New("unsupported crawl mechanism")
	}
}

type CollyFetcher struct {
	Transport http.RoundTripper
	UserAgent string
}

func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transport := f.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	p := &Page{URL: pageURL}

	c := colly.NewCollector()
	c.WithTransport(&contextTransport{ctx: ctx, next: transport})
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}
	if f.UserAgent != "" {
		c.UserAgent = f.UserAgent
	}

	c.OnResponse(func(resp *colly.Response) {
		p.Status = resp.StatusCode
		p.Body = resp.Body
	})
	c.OnError(func(resp *colly.Response, err error) {
		if resp != nil {
			p.Status = resp.StatusCode
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return p, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	return p, nil
}

// contextTransport binds outgoing requests to the caller's context; colly v1 has no context support.
type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}

type BrowserFetcher struct {
	UserAgent string
}

func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	p := &Page{URL: pageURL}
	bCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	chromedp.ListenTarget(bCtx, func(event interface{}) {
		switch ev := event.(type) {
		case *network.EventResponseReceived:
			if ev.Type != network.ResourceTypeDocument || p.Status != 0 {
				return
			}
			if ev.Response.URL == p.URL || ev.Response.URL == p.URL+"/" {
				p.Status = int(ev.Response.Status)
			}
		case *network.EventRequestWillBeSent:
			if ev.RedirectResponse != nil && ev.Type == network.ResourceTypeDocument {
				p.URL = ev.Request.URL
				slog.Debug("redirected.", slog.String("url", ev.RedirectResponse.URL))
			}
		}
	})

	var html string
	err := chromedp.Run(bCtx,
		chromedp.Tasks{
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"User-Agent": f.UserAgent}),
			enableLifeCycleEvents(),
			navigateAndWaitFor(pageURL, "networkIdle"),
		},
		chromedp.ActionFunc(func(ctx context.Context) error {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return p, fmt.Errorf("browser fetch %s: %w", pageURL, err)
	}
	if p.Status == 0 {
		p.Status = http.StatusOK
	}
	p.Body = []byte(html)
	return p, nil
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.Enable().Do(ctx); err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

func navigateAndWaitFor(url string, eventName string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		return waitFor(ctx, eventName)
	}
}

func waitFor(ctx context.Context, eventName string) error {
	ch := make(chan struct{})
	once := &sync.Once{}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	chromedp.ListenTarget(cctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == eventName {
			once.Do(func() {
				cancel()
				close(ch)
			})
		}
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
