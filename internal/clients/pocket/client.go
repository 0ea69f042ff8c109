// Package pocket provides a client for the pocket.tw DtNo data API,
// which serves the daily holdings disclosures of Taiwan active ETFs.
package pocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/yhlin/etfwatch/internal/common"
	"github.com/yhlin/etfwatch/internal/interfaces"
	"github.com/yhlin/etfwatch/internal/models"
)

const (
	DefaultBaseURL   = "https://www.pocket.tw/api/cm/MobileService/ashx/GetDtnoData.ashx"
	DefaultDtNo      = "59449513"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	refererURL = "https://www.pocket.tw/etf/tw/"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// paramStrFormat selects the holdings table (M722) for one fund.
	paramStrFormat = "AssignID=%s;MTPeriod=0;DTMode=0;DTRange=1;DTOrder=1;MajorTable=M722;"
)

// Client implements the DisclosureClient interface against pocket.tw
type Client struct {
	baseURL    string
	dtNo       string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithDtNo sets the DtNo table identifier
func WithDtNo(dtNo string) ClientOption {
	return func(c *Client) {
		c.dtNo = dtNo
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

// NewClient creates a new pocket.tw disclosure client.
// No API key is required; the endpoint is public but expects
// browser-like headers.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		dtNo:    DefaultDtNo,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a pocket.tw API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pocket.tw API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// GetHoldings retrieves the latest disclosed holdings table for one fund.
// Rows come back positionally: date, instrument code, instrument name,
// weight percent, share count, unit.
func (c *Client) GetHoldings(ctx context.Context, fundCode string) (*models.DtnoData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("action", "getdtnodata")
	params.Set("DtNo", c.dtNo)
	params.Set("ParamStr", fmt.Sprintf(paramStrFormat, fundCode))
	params.Set("FilterNo", "0")

	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", refererURL)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	c.logger.Debug().Str("fund", fundCode).Msg("pocket.tw disclosure request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error().Err(err).Str("fund", fundCode).Dur("elapsed", elapsed).Msg("pocket.tw request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("fund", fundCode).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("pocket.tw non-OK response")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("request failed for fund %s", fundCode),
			Endpoint:   c.baseURL,
		}
	}

	var data models.DtnoData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Info().Str("fund", fundCode).Int("rows", len(data.Data)).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("pocket.tw disclosure fetched")

	return &data, nil
}

// Ensure Client implements DisclosureClient
var _ interfaces.DisclosureClient = (*Client)(nil)
