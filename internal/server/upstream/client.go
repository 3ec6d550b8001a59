// Package upstream reads the paginated server feed of the parent registry.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/regmirror/internal/common"
	"github.com/dmitrijs2005/regmirror/internal/logging"
	"github.com/google/uuid"
)

const (
	DefaultPageSize       = 100
	DefaultRequestTimeout = 30 * time.Second

	// maxPageBytes bounds a single page body.
	maxPageBytes = 32 << 20
)

// Page is one successfully decoded upstream response. FetchID is shared by
// every page of a single FetchSince call.
type Page struct {
	FetchID string
	Index   int
	Cursor  string
	Body    []byte
}

// PageFunc observes fetched pages. It must not retain Body after returning.
type PageFunc func(ctx context.Context, p Page)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithPageHook registers fn to be called for every page before its records
// are yielded.
func WithPageHook(fn PageFunc) Option {
	return func(c *Client) { c.onPage = fn }
}

// Client fetches server entries from an upstream registry.
type Client struct {
	baseURL        string
	http           *http.Client
	pageSize       int
	requestTimeout time.Duration
	logger         logging.Logger
	onPage         PageFunc
}

// NewClient returns a client for the registry rooted at baseURL
// (e.g. "https://registry.modelcontextprotocol.io/v0").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		pageSize:       DefaultPageSize,
		requestTimeout: DefaultRequestTimeout,
		logger:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = newHTTPClient(c.requestTimeout)
	}
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       30 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
		},
	}
}

type pageEnvelope struct {
	Servers  []json.RawMessage `json:"servers"`
	Metadata struct {
		NextCursor *string `json:"nextCursor"`
		Count      int     `json:"count"`
	} `json:"metadata"`
}

// FetchSince lazily yields every server entry changed since watermark, in
// page order. A nil watermark fetches everything.
//
// Each call starts from the first page. The first error (transport, non-2xx
// status, undecodable page or a repeated cursor) is yielded once and ends
// the sequence; nothing is retried.
func (c *Client) FetchSince(ctx context.Context, watermark *time.Time) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		fetchID := uuid.NewString()
		seen := make(map[string]struct{})
		cursor := ""

		for index := 1; ; index++ {
			env, body, err := c.fetchPage(ctx, cursor, watermark)
			if err != nil {
				yield(nil, err)
				return
			}

			c.logger.Debug(ctx, "upstream page fetched",
				"fetch_id", fetchID, "page", index, "records", len(env.Servers), "count", env.Metadata.Count)

			if c.onPage != nil {
				c.onPage(ctx, Page{FetchID: fetchID, Index: index, Cursor: cursor, Body: body})
			}

			for _, raw := range env.Servers {
				if !yield(raw, nil) {
					return
				}
			}

			next := env.Metadata.NextCursor
			if next == nil || *next == "" {
				return
			}
			if _, dup := seen[*next]; dup || *next == cursor {
				yield(nil, fmt.Errorf("%w: cursor %q repeated", common.ErrUpstream, *next))
				return
			}
			seen[*next] = struct{}{}
			cursor = *next
		}
	}
}

func (c *Client) pageURL(cursor string, watermark *time.Time) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if watermark != nil {
		q.Set("updated_since", watermark.UTC().Format(time.RFC3339))
	}
	return c.baseURL + "/servers?" + q.Encode()
}

func (c *Client) fetchPage(ctx context.Context, cursor string, watermark *time.Time) (*pageEnvelope, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	u := c.pageURL(cursor, watermark)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: build request: %v", common.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: GET %s: %v", common.ErrUpstream, u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read body: %v", common.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%w: GET %s: status %d", common.ErrUpstream, u, resp.StatusCode)
	}

	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: decode page: %v", common.ErrUpstream, err)
	}
	return &env, body, nil
}
