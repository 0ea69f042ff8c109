// Package fbs scrapes the daily warrant ranking pages served by the
// Fubon e-broker site (ebroker-dj.fbs.com.tw). The pages arrive as
// Big5-encoded pipe-delimited text behind light anti-bot checks, so
// the client warms up a browser-like session before paging.
package fbs

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
	"golang.org/x/time/rate"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

const (
	DefaultBaseURL   = "https://ebroker-dj.fbs.com.tw"
	DefaultPages     = 5
	DefaultSortType  = 3 // volume ranking
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 1 // requests per second

	rankingPathFormat = "/WRT/zx/zxd/zxd.djhtm?A=%d&B=&Page=%d"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
}

// Client implements the WarrantClient interface against the Fubon
// e-broker ranking pages.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	userAgent  string
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new Fubon e-broker warrant client. The client
// keeps cookies across requests since the site rejects sessionless
// page fetches.
func NewClient(opts ...ClientOption) *Client {
	jar, _ := cookiejar.New(nil)

	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Jar:     jar,
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:    common.NewSilentLogger(),
		userAgent: userAgents[rand.Intn(len(userAgents))],
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchRankings scrapes the requested number of ranking pages and
// returns the parsed warrants, deduplicated by warrant code with the
// first occurrence winning. All rows carry the given trade date.
// Pages that fail to fetch or parse are skipped rather than failing
// the whole run.
func (c *Client) FetchRankings(ctx context.Context, date string, pages, sortType int) ([]models.Warrant, error) {
	if pages <= 0 {
		pages = DefaultPages
	}
	if sortType <= 0 {
		sortType = DefaultSortType
	}

	c.warmup(ctx)

	var all []models.Warrant
	seen := make(map[string]bool)

	for page := 1; page <= pages; page++ {
		warrants, err := c.fetchPage(ctx, page, sortType)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			c.logger.Warn().Err(err).Int("page", page).Msg("Warrant page fetch failed, skipping")
			continue
		}

		added := 0
		for _, w := range warrants {
			if seen[w.WarrantCode] {
				continue
			}
			seen[w.WarrantCode] = true
			w.TradeDate = date
			all = append(all, w)
			added++
		}

		c.logger.Debug().Int("page", page).Int("parsed", len(warrants)).Int("kept", added).Msg("Warrant page scraped")
	}

	c.logger.Info().Str("date", date).Int("pages", pages).Int("warrants", len(all)).Msg("Warrant scrape complete")

	return all, nil
}

// warmup visits the site root to establish a cookie session before
// the ranking pages are requested. Failures are non-fatal.
func (c *Client) warmup(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return
	}
	c.setBrowserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Warrant session warmup failed")
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (c *Client) fetchPage(ctx context.Context, page, sortType int) ([]models.Warrant, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + fmt.Sprintf(rankingPathFormat, sortType, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setBrowserHeaders(req)
	req.Header.Set("Referer", c.baseURL+"/")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ranking page %d returned status %d", page, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	content := decodePage(raw)
	if content == "" {
		return nil, fmt.Errorf("ranking page %d could not be decoded", page)
	}

	if IsBlockedContent(content) {
		return nil, fmt.Errorf("ranking page %d blocked by anti-bot check", page)
	}

	var warrants []models.Warrant
	if IsTextFormat(content) {
		warrants = ParseTextPage(content, page)
	} else {
		// HTML pages only expose warrant codes via script links. Without
		// names, types, or quotes those rows cannot be stored, so log
		// what was there and move on.
		codes := ExtractWarrantCodes(content)
		c.logger.Warn().Int("page", page).Int("codes", len(codes)).Msg("Warrant page served HTML, no parseable quotes")
	}

	c.logger.Debug().Int("page", page).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Int("warrants", len(warrants)).Msg("Warrant page fetched")

	return warrants, nil
}

func (c *Client) setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// decodePage converts a raw ranking page to UTF-8. The site serves
// Big5; the decoded text must mention 權證 to count as a real page.
// Falls back to treating the bytes as UTF-8 before giving up.
func decodePage(raw []byte) string {
	decoded, _, err := transform.Bytes(traditionalchinese.Big5.NewDecoder(), raw)
	if err == nil && strings.Contains(string(decoded), "權證") {
		return string(decoded)
	}

	if s := string(raw); strings.Contains(s, "權證") {
		return s
	}

	return ""
}

// Ensure Client implements WarrantClient
var _ interfaces.WarrantClient = (*Client)(nil)
