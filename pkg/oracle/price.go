// Package oracle supplies the external market inputs of the scored
// evaluator: spot prices for price conditions and gas prices for profit
// estimation. Both are cached process-wide with TTL-based refresh and are
// safe for concurrent use. Lookups fail closed: a missing price fails the
// condition consulting it, never the tick.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// PriceSource fetches the spot price of a token on a chain from a named
// oracle source.
type PriceSource interface {
	Price(ctx context.Context, token string, chainID uint64, source string) (float64, error)
}

// DefaultPriceTTL is how long a fetched price stays fresh.
const DefaultPriceTTL = 60 * time.Second

type priceKey struct {
	chainID uint64
	token   string
	source  string
}

type priceEntry struct {
	value   float64
	expires time.Time
}

// CachedPrices memoizes a PriceSource per (chainId, token, source). Errors
// are not cached, the next lookup retries.
type CachedPrices struct {
	src PriceSource
	ttl time.Duration

	mu      sync.Mutex
	entries map[priceKey]priceEntry

	now func() time.Time
}

// NewCachedPrices wraps src with a TTL cache. Non-positive ttl means
// DefaultPriceTTL.
func NewCachedPrices(src PriceSource, ttl time.Duration) *CachedPrices {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &CachedPrices{
		src:     src,
		ttl:     ttl,
		entries: make(map[priceKey]priceEntry),
		now:     time.Now,
	}
}

// Price implements PriceSource.
func (c *CachedPrices) Price(ctx context.Context, token string, chainID uint64, source string) (float64, error) {
	key := priceKey{chainID: chainID, token: token, source: source}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	value, err := c.src.Price(ctx, token, chainID, source)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[key] = priceEntry{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return value, nil
}

// HTTPClient is the slice of http.Client the price fetcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPPrices reads prices from a JSON endpoint of the form
// {baseURL}?token=...&chainId=...&source=... returning {"price": <number>}.
type HTTPPrices struct {
	BaseURL string
	Client  HTTPClient
}

// NewHTTPPrices creates a fetcher with a keep-alive-free client, the same
// shape the oracle request path uses elsewhere.
func NewHTTPPrices(baseURL string) *HTTPPrices {
	return &HTTPPrices{
		BaseURL: baseURL,
		Client: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
			Timeout:   5 * time.Second,
		},
	}
}

// Price implements PriceSource.
func (h *HTTPPrices) Price(ctx context.Context, token string, chainID uint64, source string) (float64, error) {
	u, err := url.Parse(h.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("price endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("chainId", strconv.FormatUint(chainID, 10))
	q.Set("source", source)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price fetch: unexpected status %s", resp.Status)
	}
	var body struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("price decode: %w", err)
	}
	return body.Price, nil
}
