// Package scraper is the HTTP client for the external scraper service.
// Resource/content extraction happens outside this process; this package
// only carries the request/response wire shapes.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
)

// DefaultHostRate bounds how often this process will call the scraper for
// any single tracked host, regardless of how many trackers target it —
// part of the "network budget" half of a fetch's deadline.
const DefaultHostRate = rate.Limit(1) // 1 request/second per host, burst 1

// Client calls the external scraper's resources/content endpoints.
type Client struct {
	baseURL  string
	http     *http.Client
	hostRate rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient, hostRate: DefaultHostRate, limiters: make(map[string]*rate.Limiter)}
}

// limiterFor returns the per-host token bucket for targetURL's host,
// creating one on first use.
func (c *Client) limiterFor(targetURL string) *rate.Limiter {
	host := targetURL
	if u, err := url.Parse(targetURL); err == nil && u.Host != "" {
		host = u.Host
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.hostRate, 1)
		c.limiters[host] = l
	}
	return l
}

// scripts mirrors the request body's scripts object; exactly one of the
// two fields is populated depending on tracker kind.
type scripts struct {
	ResourceFilterMap string `json:"resourceFilterMap,omitempty"`
	ExtractContent    string `json:"extractContent,omitempty"`
}

type request struct {
	URL          string            `json:"url"`
	Timeout      int64             `json:"timeout,omitempty"`
	Delay        int64             `json:"delay,omitempty"`
	WaitSelector string            `json:"waitSelector,omitempty"`
	Scripts      scripts           `json:"scripts,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

type resourceWire struct {
	URL    string `json:"url"`
	Digest string `json:"digest"`
	Raw    string `json:"content"`
	Size   int64  `json:"size"`
}

type resourcesResponse struct {
	Timestamp int64          `json:"timestamp"`
	Scripts   []resourceWire `json:"scripts"`
	Styles    []resourceWire `json:"styles"`
}

type contentResponse struct {
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// FetchResources calls POST {base}/api/resources for a PageResources
// tracker. The returned timestamp is the scraper's own capture time
// (epoch seconds), used verbatim as the resulting revision's CreatedAt.
func (c *Client) FetchResources(ctx context.Context, t model.Tracker) (*model.PageResourcesData, int64, error) {
	if err := c.limiterFor(t.URL).Wait(ctx); err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindRemoteScraper, "rate limit wait", err)
	}
	req := request{
		URL:     t.URL,
		Delay:   t.Settings.Delay.Milliseconds(),
		Scripts: scripts{ResourceFilterMap: t.Settings.Scripts.ResourceFilterMap},
		Headers: t.Settings.Headers,
	}
	var resp resourcesResponse
	if err := c.post(ctx, "/api/resources", req, &resp); err != nil {
		return nil, 0, err
	}
	return &model.PageResourcesData{
		Scripts: toResources(resp.Scripts),
		Styles:  toResources(resp.Styles),
	}, resp.Timestamp, nil
}

// FetchContent calls POST {base}/api/content for a PageContent tracker. The
// returned timestamp is the scraper's own capture time (epoch seconds).
func (c *Client) FetchContent(ctx context.Context, t model.Tracker) (*model.PageContentData, int64, error) {
	if err := c.limiterFor(t.URL).Wait(ctx); err != nil {
		return nil, 0, apperrors.Wrap(apperrors.KindRemoteScraper, "rate limit wait", err)
	}
	req := request{
		URL:     t.URL,
		Delay:   t.Settings.Delay.Milliseconds(),
		Scripts: scripts{ExtractContent: t.Settings.Scripts.ExtractContent},
		Headers: t.Settings.Headers,
	}
	var resp contentResponse
	if err := c.post(ctx, "/api/content", req, &resp); err != nil {
		return nil, 0, err
	}
	content := model.PageContentData(resp.Content)
	return &content, resp.Timestamp, nil
}

func toResources(wire []resourceWire) []model.Resource {
	out := make([]model.Resource, len(wire))
	for i, w := range wire {
		out[i] = model.Resource{URL: w.URL, Digest: w.Digest, Raw: w.Raw, Size: w.Size}
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(apperrors.KindRemoteScraper, "encode scraper request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(apperrors.KindRemoteScraper, "build scraper request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return apperrors.Wrap(apperrors.KindRemoteScraper, "call scraper", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.KindRemoteScraper, "read scraper response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		message := "Unknown error"
		if json.Unmarshal(raw, &errResp) == nil && errResp.Message != "" {
			message = errResp.Message
		}
		// message becomes the user-facing Error.Message verbatim (UserMessage
		// returns it unchanged); the status code is diagnostic-only, carried
		// in Cause instead of folded into the message text.
		return apperrors.Wrap(apperrors.KindRemoteScraper, message, fmt.Errorf("scraper returned status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.KindRemoteScraper, "decode scraper response", err)
	}
	return nil
}
