// Package search talks to the upstream web search API one page at a time.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/therealutkarshpriyadarshi/fetscr/internal/logging"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/metrics"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/tracing"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

// PageStatus classifies an upstream page fetch
type PageStatus string

const (
	PageSuccess PageStatus = "success"
	PageEmpty   PageStatus = "empty"
	PageFailed  PageStatus = "failed"
)

const maxBodyBytes = 4 << 20

// MaxPageSize is the most items the upstream returns per page
const MaxPageSize = 10

// PageResult is the outcome of one page fetch. NextStart is zero when the
// upstream reported no further page.
type PageResult struct {
	Status    PageStatus
	Items     []models.ResultItem
	NextStart int
	Err       error
}

// PageFetcher fetches one page of results for a compound query
type PageFetcher interface {
	FetchPage(ctx context.Context, query string, start int) PageResult
}

// Config holds upstream connection settings
type Config struct {
	BaseURL  string
	APIKey   string
	EngineID string
	PageSize int
	Timeout  time.Duration
}

// Client is a PageFetcher for the Custom Search JSON API
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a new upstream search client
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// CacheScope identifies the engine and page size this client queries with
func (c *Client) CacheScope() string {
	return c.cfg.EngineID + ":" + strconv.Itoa(c.pageSize())
}

// pageSize is the number of items the upstream returns per page
func (c *Client) pageSize() int {
	if c.cfg.PageSize > 0 && c.cfg.PageSize < MaxPageSize {
		return c.cfg.PageSize
	}
	return MaxPageSize
}

// RawItem is a search hit as the upstream returns it
type RawItem struct {
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Link    string   `json:"link"`
	Pagemap *Pagemap `json:"pagemap"`
}

// Pagemap holds the structured data attached to a hit
type Pagemap struct {
	CSEThumbnail []Thumbnail `json:"cse_thumbnail"`
}

// Thumbnail is an upstream-generated preview image
type Thumbnail struct {
	Src string `json:"src"`
}

type response struct {
	Items   []RawItem `json:"items"`
	Queries struct {
		NextPage []struct {
			StartIndex int `json:"startIndex"`
		} `json:"nextPage"`
	} `json:"queries"`
}

// Normalize maps an upstream hit to a result item. Absent fields become "".
func Normalize(raw RawItem) models.ResultItem {
	item := models.ResultItem{
		Title:   raw.Title,
		Snippet: raw.Snippet,
		Link:    raw.Link,
	}
	if raw.Pagemap != nil && len(raw.Pagemap.CSEThumbnail) > 0 {
		item.ThumbnailURL = raw.Pagemap.CSEThumbnail[0].Src
	}
	return item
}

// FetchPage requests one page starting at the 1-based start index.
// Every failure is reported through the result, never retried.
func (c *Client) FetchPage(ctx context.Context, query string, start int) PageResult {
	span, ctx := tracing.StartSpan(ctx, "search.fetch_page")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "start", start)

	began := time.Now()
	res := c.fetch(ctx, query, start)
	elapsed := time.Since(began)

	tracing.SetTag(span, "status", string(res.Status))
	tracing.LogError(span, res.Err)
	metrics.RecordUpstreamPage(string(res.Status), elapsed.Seconds())
	c.logger.LogUpstreamPage(query, start, string(res.Status), len(res.Items), elapsed, res.Err)

	return res
}

func (c *Client) fetch(ctx context.Context, query string, start int) PageResult {
	endpoint, err := c.pageURL(query, start)
	if err != nil {
		return PageResult{Status: PageFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PageResult{Status: PageFailed, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PageResult{Status: PageFailed, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return PageResult{Status: PageFailed, Err: fmt.Errorf("upstream returned status %d", resp.StatusCode)}
	}

	var body response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return PageResult{Status: PageFailed, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(body.Items) == 0 {
		return PageResult{Status: PageEmpty}
	}

	items := make([]models.ResultItem, len(body.Items))
	for i, raw := range body.Items {
		items[i] = Normalize(raw)
	}

	next := 0
	if len(body.Queries.NextPage) > 0 {
		next = body.Queries.NextPage[0].StartIndex
	}

	return PageResult{Status: PageSuccess, Items: items, NextStart: next}
}

func (c *Client) pageURL(query string, start int) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	params := u.Query()
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.EngineID)
	params.Set("q", query)
	params.Set("start", strconv.Itoa(start))
	if size := c.pageSize(); size < MaxPageSize {
		params.Set("num", strconv.Itoa(size))
	}
	u.RawQuery = params.Encode()

	return u.String(), nil
}
