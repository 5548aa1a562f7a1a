// Package exchange provides the upstream market-data client. Every call runs
// through the shared request queue (rate-limit safety) and the retrying
// fetch (transient-failure tolerance); a failed call is a per-symbol failure
// for the calling task, never a run-fatal error.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-signal-alerts/internal/httpclient"
)

const (
	defaultBaseURL         = "https://fapi.binance.com"
	defaultAnnouncementURL = "https://www.binance.com"
	defaultUserAgent       = "sigwatch/1.0"
	announcementPath       = "/bapi/apex/v1/public/apex/cms/article/list/query"
	// newListingCatalog is the CMS catalogue holding new-listing articles.
	newListingCatalog = 48
)

// Options parameterise the exchange client.
type Options struct {
	BaseURL         string
	AnnouncementURL string
	UserAgent       string
	Timeout         time.Duration
	Retries         int
	// MinRequestDelay and MaxRandomDelay shape the request queue spacing.
	MinRequestDelay time.Duration
	MaxRandomDelay  time.Duration
}

// Client fetches market data from the exchange REST API.
type Client struct {
	opts   Options
	client *http.Client
	queue  *httpclient.Queue
	logger zerolog.Logger
}

// NewClient constructs a Client with its own serialized request queue.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.AnnouncementURL == "" {
		opts.AnnouncementURL = defaultAnnouncementURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	return &Client{
		opts:   opts,
		client: &http.Client{},
		queue:  httpclient.NewQueue(opts.MinRequestDelay, opts.MaxRandomDelay),
		logger: logger.With().Str("component", "exchange").Logger(),
	}
}

// Close stops the request queue.
func (c *Client) Close() {
	c.queue.Close()
}

// PremiumIndex fetches a symbol's funding snapshot.
func (c *Client) PremiumIndex(ctx context.Context, symbol string) (PremiumIndex, error) {
	var out PremiumIndex
	endpoint := fmt.Sprintf("%s/fapi/v1/premiumIndex?symbol=%s", strings.TrimRight(c.opts.BaseURL, "/"), url.QueryEscape(symbol))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return PremiumIndex{}, fmt.Errorf("premium index %s: %w", symbol, err)
	}
	return out, nil
}

// LongShortRatio fetches the most recent global long/short account ratio
// bucket for a symbol at the given period (e.g. "5m").
func (c *Client) LongShortRatio(ctx context.Context, symbol, period string) (LongShortRatio, error) {
	var buckets []LongShortRatio
	endpoint := fmt.Sprintf("%s/futures/data/globalLongShortAccountRatio?symbol=%s&period=%s&limit=1",
		strings.TrimRight(c.opts.BaseURL, "/"), url.QueryEscape(symbol), url.QueryEscape(period))
	if err := c.getJSON(ctx, endpoint, &buckets); err != nil {
		return LongShortRatio{}, fmt.Errorf("long/short ratio %s: %w", symbol, err)
	}
	if len(buckets) == 0 {
		return LongShortRatio{}, fmt.Errorf("long/short ratio %s: empty response", symbol)
	}
	return buckets[len(buckets)-1], nil
}

// OpenInterest fetches a symbol's current open interest.
func (c *Client) OpenInterest(ctx context.Context, symbol string) (OpenInterest, error) {
	var out OpenInterest
	endpoint := fmt.Sprintf("%s/fapi/v1/openInterest?symbol=%s", strings.TrimRight(c.opts.BaseURL, "/"), url.QueryEscape(symbol))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return OpenInterest{}, fmt.Errorf("open interest %s: %w", symbol, err)
	}
	return out, nil
}

// TickerPrice fetches a symbol's latest traded price.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (TickerPrice, error) {
	var out TickerPrice
	endpoint := fmt.Sprintf("%s/fapi/v1/ticker/price?symbol=%s", strings.TrimRight(c.opts.BaseURL, "/"), url.QueryEscape(symbol))
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return TickerPrice{}, fmt.Errorf("ticker price %s: %w", symbol, err)
	}
	return out, nil
}

type announcementResponse struct {
	Code string `json:"code"`
	Data struct {
		Catalogs []struct {
			Articles []Announcement `json:"articles"`
		} `json:"catalogs"`
	} `json:"data"`
}

// Announcements fetches the latest new-listing announcement articles.
func (c *Client) Announcements(ctx context.Context, pageSize int) ([]Announcement, error) {
	if pageSize <= 0 {
		pageSize = 20
	}

	endpoint := fmt.Sprintf("%s%s?type=1&catalogId=%d&pageNo=1&pageSize=%d",
		strings.TrimRight(c.opts.AnnouncementURL, "/"), announcementPath, newListingCatalog, pageSize)

	var resp announcementResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("announcements: %w", err)
	}
	if resp.Code != "" && resp.Code != "000000" {
		return nil, fmt.Errorf("announcements: api code %s", resp.Code)
	}

	var articles []Announcement
	for _, catalog := range resp.Data.Catalogs {
		articles = append(articles, catalog.Articles...)
	}
	return articles, nil
}

// getJSON performs one queued, retried GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	return c.queue.Add(ctx, func() error {
		resp, err := httpclient.Do(ctx, c.client, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("User-Agent", c.opts.UserAgent)
			return req, nil
		}, httpclient.Options{
			Retries: c.opts.Retries,
			Timeout: c.opts.Timeout,
			Jitter:  true,
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return parseAPIError(resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func parseAPIError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(payload) == 0 {
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	var apiErr apiError
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Msg != "" {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Msg)
	}
	return fmt.Errorf("api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
}
