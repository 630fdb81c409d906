package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RESTClient is a small client for the V5 public market endpoints, used to
// warm candle history before the stream is live. Requests are rate limited
// to stay well inside Bybit's public IP limits.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
}

// GetKlines fetches candles for one symbol/interval between start and end.
// Bybit returns rows newest-first; the result is reversed into ascending
// start-time order so it can be replayed through the same upsert path the
// live stream uses.
func (c *RESTClient) GetKlines(ctx context.Context, category, symbol string,
	interval KlineInterval, start, end time.Time, limit int) ([]KlineEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(
		"%s/v5/market/kline?category=%s&symbol=%s&interval=%s&start=%d&end=%d&limit=%d",
		c.baseURL,
		category,
		symbol,
		interval,
		start.UnixMilli(),
		end.UnixMilli(),
		limit,
	)

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check HTTP status code
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bybit error: %s", body)
	}

	var rawResp RESTResponse
	if err := json.NewDecoder(resp.Body).Decode(&rawResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rawResp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error %d: %s", rawResp.RetCode, rawResp.RetMsg)
	}

	var result KlinesResult
	if err := json.Unmarshal(rawResp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	return ParseKlineRows(interval, result.List), nil
}
